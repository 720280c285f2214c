package smtpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"mailbridge/internal/config"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
)

// ingestTimeout bounds processing of one DATA payload.
const ingestTimeout = 60 * time.Second

// Ingestor accepts a complete raw message and returns its assigned id.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte) (string, error)
}

var (
	errAuthRequired = &smtp.SMTPError{
		Code:         530,
		EnhancedCode: smtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &smtp.SMTPError{
		Code:         535,
		EnhancedCode: smtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication credentials invalid",
	}
)

type Server struct {
	srv *smtp.Server
	log *logrus.Entry
}

func New(cfg *config.Config, ingestor Ingestor, log *logrus.Logger) *Server {
	b := &backend{
		ingestor:     ingestor,
		authRequired: cfg.SMTPAuthRequired,
		username:     cfg.SMTPUsername,
		password:     cfg.SMTPPassword,
		log:          log.WithField("component", "smtpserver"),
	}

	srv := smtp.NewServer(b)
	srv.Addr = cfg.SMTPAddr()
	srv.Domain = cfg.SMTPHostname
	srv.ReadTimeout = time.Minute
	srv.WriteTimeout = time.Minute
	srv.MaxMessageBytes = int64(cfg.MaxMessageBytes)
	srv.MaxRecipients = 50
	srv.AllowInsecureAuth = true

	return &Server{srv: srv, log: b.log}
}

func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.srv.Addr).Info("smtp server listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Close() error {
	return s.srv.Close()
}

type backend struct {
	ingestor     Ingestor
	authRequired bool
	username     string
	password     string
	log          *logrus.Entry
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	s := &session{backend: b}
	if c != nil && c.Conn() != nil {
		s.remote = c.Conn().RemoteAddr().String()
	}
	return s, nil
}

type session struct {
	backend       *backend
	remote        string
	authenticated bool
	from          string
	rcpts         []string
}

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.backend.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.backend.password)) == 1
		if !userOK || !passOK {
			s.backend.log.WithField("remote", s.remote).Warn("authentication failed")
			return errAuthFailed
		}
		s.authenticated = true
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.authRequired && !s.authenticated {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 0, 0},
			Message:      fmt.Sprintf("Temporary processing error: %v", err),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	id, err := s.backend.ingestor.Ingest(ctx, raw)
	if err != nil {
		// Transient failure tells the sending MTA to retry; no message is
		// dropped without either a successful store or this response.
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 0, 0},
			Message:      fmt.Sprintf("Temporary processing error: %v", err),
		}
	}

	// go-smtp only lets Data customize the reply through the returned status,
	// so the acceptance line with the message id goes out the same way.
	return &smtp.SMTPError{
		Code:         250,
		EnhancedCode: smtp.EnhancedCode{2, 0, 0},
		Message:      fmt.Sprintf("Message %s accepted", id),
	}
}

func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *session) Logout() error {
	return nil
}
