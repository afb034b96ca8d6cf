package tally

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"bitbucket.org/synergymed/hims_backend/config"
	"bitbucket.org/synergymed/hims_backend/models"
	"bitbucket.org/synergymed/hims_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

const defaultSyncTopic = "tally-sync"

// SyncJobMessage is the payload published for one async sync job. Dates are
// YYYY-MM-DD, empty for the defaults.
type SyncJobMessage struct {
	SyncType      string `json:"syncType"`
	FromDate      string `json:"fromDate,omitempty"`
	ToDate        string `json:"toDate,omitempty"`
	CorrelationId string `json:"correlationId,omitempty"`
}

func syncTopicName() string {
	if v := strings.TrimSpace(os.Getenv("TALLY_SYNC_TOPIC")); v != "" {
		return v
	}
	return defaultSyncTopic
}

// asyncDispatchEnabled gates publish-vs-inline. Off unless a Pub/Sub project
// is configured and TALLY_SYNC_ASYNC isn't explicitly disabled.
func asyncDispatchEnabled() bool {
	return envBoolDefault("TALLY_SYNC_ASYNC", true) && pubsubConfigured()
}

func pubsubConfigured() bool {
	return os.Getenv("PUBSUB_PROJECT_ID") != "" ||
		os.Getenv("GOOGLE_CLOUD_PROJECT") != "" ||
		os.Getenv("GCP_PROJECT") != ""
}

func envBoolDefault(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

// PublishSyncJob publishes one job to the sync topic and waits for the
// server ack.
func PublishSyncJob(ctx context.Context, msg SyncJobMessage) (string, error) {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	topic, err := config.CreateTopicIfNotExists(client, syncTopicName())
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	id, err := topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		return "", err
	}
	return id, nil
}

// runSyncJob resolves the message into a concrete sync call.
func runSyncJob(ctx context.Context, syncer *Syncer, msg SyncJobMessage) (*models.SyncStatus, error) {
	syncType, err := models.ParseSyncType(msg.SyncType)
	if err != nil {
		return nil, err
	}
	from, to, err := parseExportWindow(msg.FromDate, msg.ToDate)
	if err != nil {
		return nil, err
	}
	return syncer.RunSync(ctx, syncType, from, to)
}

// pushEnvelope is the wrapper Pub/Sub push subscriptions POST to us.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPushHandler consumes sync jobs delivered by a push subscription.
// Anything except a busy lock acks the message; retrying a malformed
// payload or an exhausted job would just loop.
func PubSubPushHandler(syncer *Syncer) gin.HandlerFunc {
	log := config.GetLogger()

	return func(c *gin.Context) {
		var envelope pushEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil {
			config.LogError(log, moduleName, "PubSubPushHandler", "bind push envelope", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			config.LogError(log, moduleName, "PubSubPushHandler", "decode message data", envelope.Message.MessageId, err)
			c.Status(http.StatusNoContent)
			return
		}

		var msg SyncJobMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			config.LogError(log, moduleName, "PubSubPushHandler", "unmarshal job", string(data), err)
			c.Status(http.StatusNoContent)
			return
		}

		ctx := c.Request.Context()
		if msg.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
		}

		status, err := runSyncJob(ctx, syncer, msg)
		if err != nil {
			if errors.Is(err, ErrSyncAlreadyRunning) {
				// Nack so the subscription redelivers once the lock frees up.
				c.Status(http.StatusConflict)
				return
			}
			config.LogError(log, moduleName, "PubSubPushHandler", msg.SyncType, msg, err)
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
