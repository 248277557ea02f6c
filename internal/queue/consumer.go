// Package queue contains the background consumer that listens to the
// circulation.events queue and writes structured logs to logs/circulation.log.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartCirculationConsumer connects to RabbitMQ, declares the
// circulation.events queue (durable), and starts consuming messages.
// Each message is appended to logs/circulation.log in a single-line,
// human-friendly format. The function runs a reconnect loop; it keeps
// running and logs any processing errors while rejecting the offending
// message so the server continues operating.
func StartCirculationConsumer() error {
	url := brokerURL()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("circulation-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			log.Printf("circulation-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("circulation-consumer: set QoS failed: %v", err)
	}

	_, err = ch.QueueDeclare(circulationQueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(circulationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			log.Printf("circulation-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var ev CirculationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	// Ensure logs directory exists
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "circulation.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev CirculationEvent) string {
	switch ev.Kind {
	case KindLoanCheckedOut:
		return fmt.Sprintf("[%s] Loan checked out | loan_id=%d | user_id=%d | book_id=%d | book=%q | due=%s\n",
			ev.OccurredAt, ev.LoanID, ev.UserID, ev.BookID, ev.BookTitle, ev.DueDate)
	case KindLoanReturned:
		return fmt.Sprintf("[%s] Loan returned | loan_id=%d | user_id=%d | book_id=%d | returned=%s | fine=%.2f\n",
			ev.OccurredAt, ev.LoanID, ev.UserID, ev.BookID, ev.ReturnDate, ev.FineAmount)
	case KindReservationCreated:
		return fmt.Sprintf("[%s] Reservation created | reservation_id=%d | user_id=%d | book_id=%d | position=%d\n",
			ev.OccurredAt, ev.ReservationID, ev.UserID, ev.BookID, ev.QueuePosition)
	case KindReservationCancelled, KindReservationCompleted:
		return fmt.Sprintf("[%s] %s | reservation_id=%d | user_id=%d | book_id=%d\n",
			ev.OccurredAt, ev.Kind, ev.ReservationID, ev.UserID, ev.BookID)
	case KindReservationsExpired:
		return fmt.Sprintf("[%s] Reservations expired | count=%d\n", ev.OccurredAt, ev.ExpiredCount)
	default:
		return fmt.Sprintf("[%s] %s | %+v\n", ev.OccurredAt, ev.Kind, ev)
	}
}
