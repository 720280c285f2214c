package botworker

import (
	"context"
	"time"

	"mailbridge/internal/dnscheck"
	"mailbridge/internal/dnsprovider"
	"mailbridge/internal/ingest"
	"mailbridge/internal/redisstore"
	"mailbridge/internal/routing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Worker consumes administrative commands from the messaging transport and
// maps them onto the store, routing config, validator and provisioner. Only
// the owner chat is allowed to issue commands.
type Worker struct {
	bot         *tgbotapi.BotAPI
	ownerChatID int64
	handler     *Handler
	log         *logrus.Entry
}

func New(
	bot *tgbotapi.BotAPI,
	ownerChatID int64,
	store *redisstore.Store,
	routes *routing.Config,
	validator *dnscheck.Validator,
	manager *dnsprovider.Manager,
	providerClient *dnsprovider.Client,
	pipeline *ingest.Pipeline,
	log *logrus.Logger,
) *Worker {
	return &Worker{
		bot:         bot,
		ownerChatID: ownerChatID,
		handler: &Handler{
			store:          store,
			routes:         routes,
			validator:      validator,
			manager:        manager,
			providerClient: providerClient,
			pipeline:       pipeline,
			startedAt:      time.Now(),
			log:            log.WithField("component", "botworker"),
		},
		log: log.WithField("component", "botworker"),
	}
}

func (w *Worker) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := w.bot.GetUpdatesChan(u)

	w.log.Info("command worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("command worker stopping")
			w.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}
			if msg.Chat.ID != w.ownerChatID {
				w.log.WithField("chat_id", msg.Chat.ID).Warn("command from unauthorized chat ignored")
				continue
			}

			reply := w.handler.Dispatch(ctx, msg.Command(), msg.CommandArguments())
			if reply == "" {
				continue
			}
			out := tgbotapi.NewMessage(msg.Chat.ID, reply)
			out.ParseMode = tgbotapi.ModeMarkdown
			if _, err := w.bot.Send(out); err != nil {
				w.log.WithError(err).Error("command reply failed")
			}
		}
	}
}
