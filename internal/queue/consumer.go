package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartInviteConsumer connects to RabbitMQ, declares the waitlist.invite
// queue (durable), and starts consuming messages.  It stands in for the
// email collaborator: each invite is appended to logs/invites.log in a
// single-line, human-friendly format so operators can audit what was
// dispatched.  The function runs a reconnect loop; it keeps running and
// logs any processing errors while rejecting the offending message so the
// server continues operating.  brokerURL is the configured broker address;
// empty falls back to the AMQP_URL env var and then the local default.
func StartInviteConsumer(configuredURL string) error {
	url := brokerURL(configuredURL)

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("invite-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeInvites(conn); err != nil {
			log.Printf("invite-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeInvites(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("invite-consumer: set QoS failed: %v", err)
	}

	_, err = ch.QueueDeclare(inviteQueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(inviteQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleInvite(d.Body); err != nil {
			log.Printf("invite-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleInvite(body []byte) error {
	var ev ClaimInviteEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "invites.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	regions := "any"
	if len(ev.RegionCodes) > 0 {
		regions = strings.Join(ev.RegionCodes, ",")
	}

	line := fmt.Sprintf("[%s] Claim invite | request_id=%d | company=%q | email=%s | package=%s | regions=%s | expires_at=%s\n",
		ev.InviteSentAt, ev.RequestID, ev.CompanyName, ev.ContactEmail, ev.PackageType, regions, ev.InviteExpiresAt)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
