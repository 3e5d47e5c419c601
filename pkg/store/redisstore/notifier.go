package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/store"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel enrollment events are published to.
const DefaultChannel = "campus:enrollments"

// Event is the JSON payload published for each enrollment.
type Event struct {
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	CourseID    string    `json:"course_id"`
	CourseCode  string    `json:"course_code,omitempty"`
	EnrolledAt  time.Time `json:"enrolled_at"`
}

// Notifier publishes enrollment events to a Redis channel.
type Notifier struct {
	redis   *redis.Client
	channel string
}

// NewNotifier creates a notifier. An empty channel uses DefaultChannel.
func NewNotifier(redisClient *redis.Client, channel string) *Notifier {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{redis: redisClient, channel: channel}
}

// Notify implements enrollment.Notifier.
func (n *Notifier) Notify(ctx context.Context, student enrollment.Student, course enrollment.Course) error {
	data, err := json.Marshal(Event{
		StudentID:   student.ID,
		StudentName: student.Name,
		CourseID:    course.ID,
		CourseCode:  course.Code,
		EnrolledAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal enrollment event: %w", err)
	}

	err = n.redis.Publish(ctx, n.channel, data).Err()
	store.Observe(backend, "publish", err)
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of decoded events. It is closed when ctx ends.
// Malformed payloads are skipped.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := n.redis.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
