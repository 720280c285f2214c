package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mailbridge/internal/dnscheck"
	"mailbridge/internal/dnsprovider"
	"mailbridge/internal/domain"
	"mailbridge/internal/mailparse"
	"mailbridge/internal/notify"
	"mailbridge/internal/redisstore"
	"mailbridge/internal/routing"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	// sideEffectSlots bounds concurrent notification/provisioning work.
	sideEffectSlots = 8
	// sideEffectTimeout bounds one message's detached side effects.
	sideEffectTimeout = 30 * time.Second
)

// Provisioner triggers DNS record creation for managed recipient domains.
type Provisioner interface {
	Managed(recipientDomain string) bool
	Username(recipientDomain string) string
	EnsureIntegration(ctx context.Context, username string) *dnsprovider.Result
}

// Pipeline runs one ingested message through parse, DNS validation, storage,
// routing, notification and optional provisioning. Parse and storage
// failures are fatal to the message; everything after storage is contained
// and only logged, so a degraded DNS or messaging subsystem never rejects
// valid mail.
type Pipeline struct {
	store       *redisstore.Store
	validator   *dnscheck.Validator
	routes      *routing.Config
	messenger   notify.Messenger
	provisioner Provisioner // nil when no provider is configured
	log         *logrus.Entry

	counter atomic.Uint64
	sem     chan struct{}
	wg      sync.WaitGroup
}

func New(
	store *redisstore.Store,
	validator *dnscheck.Validator,
	routes *routing.Config,
	messenger notify.Messenger,
	provisioner Provisioner,
	log *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		store:       store,
		validator:   validator,
		routes:      routes,
		messenger:   messenger,
		provisioner: provisioner,
		log:         log.WithField("component", "ingest"),
		sem:         make(chan struct{}, sideEffectSlots),
	}
}

// Ingest accepts one raw message and returns its generated id. An error means
// the message was not durably accepted and the protocol layer must ask the
// sender to retry.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte) (string, error) {
	now := time.Now()
	id := newMessageID(now)
	log := p.log.WithField("msg_id", id)

	meta, err := mailparse.Extract(raw, id, now)
	if err != nil {
		log.WithError(err).Error("message rejected: parse failed")
		return "", fmt.Errorf("parse: %w", err)
	}
	log = log.WithField("domain", meta.RecipientDomain)

	// Validation never fails the message; a partial report is attached as-is.
	meta.DNSReport = p.validator.Validate(ctx, meta.RecipientDomain)

	if err := p.store.Store(ctx, id, raw, meta); err != nil {
		log.WithError(err).Error("message rejected: store failed")
		return "", fmt.Errorf("store: %w", err)
	}

	seq := p.counter.Add(1)
	target := p.routes.Resolve(meta.RecipientDomain)
	text := notify.Format(seq, meta, mailparse.Preview(raw))

	p.wg.Add(1)
	go p.sideEffects(id, meta.RecipientDomain, target, text)

	log.WithFields(logrus.Fields{
		"seq":     seq,
		"target":  target.String(),
		"subject": meta.Subject,
	}).Info("message accepted")

	return id, nil
}

// sideEffects delivers the notification and fires provisioning for one
// accepted message. It is detached from the protocol response and bounded by
// the semaphore and its own timeout; failures are logged, never propagated.
func (p *Pipeline) sideEffects(id, recipientDomain string, target domain.Target, text string) {
	defer p.wg.Done()

	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	log := p.log.WithField("msg_id", id)

	if err := p.messenger.Send(ctx, target, text); err != nil {
		log.WithError(err).Error("notification failed; message remains accepted")
	}

	if p.provisioner == nil || !p.provisioner.Managed(recipientDomain) {
		return
	}
	username := p.provisioner.Username(recipientDomain)
	result := p.provisioner.EnsureIntegration(ctx, username)
	if result.Err != "" {
		log.WithField("username", username).Warnf("provisioning failed: %s", result.Err)
		return
	}
	log.WithField("username", username).Info("dns integration provisioned")
}

// Count returns the number of messages accepted since startup.
func (p *Pipeline) Count() uint64 {
	return p.counter.Load()
}

// Drain waits for in-flight side effects, up to the given timeout.
func (p *Pipeline) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		p.log.Warn("shutdown with side effects still in flight")
	}
}

// newMessageID builds an id from the ingestion timestamp and a short random
// suffix. Collisions are treated as negligible and not checked against the
// store.
func newMessageID(now time.Time) string {
	entropy := strings.ToLower(ulid.Make().String())
	return fmt.Sprintf("msg_%s_%s", now.UTC().Format("20060102_150405"), entropy[len(entropy)-8:])
}
