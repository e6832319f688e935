package service

import (
	"context"
	"encoding/json"
	"time"

	"quiz_engine/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const EventQuizPublished = "quiz.published"

type QuizPublishedEvent struct {
	Event        string     `json:"event"`
	QuizID       string     `json:"quizId"`
	CourseID     uint       `json:"courseId"`
	SchoolID     uint       `json:"schoolId"`
	Title        string     `json:"title"`
	VisibleUntil *time.Time `json:"visibleUntil,omitempty"`
	Recipients   []uint     `json:"recipients"`
	PublishedAt  time.Time  `json:"publishedAt"`
}

// Notifier 发送测验发布通知，失败不影响主流程
type Notifier interface {
	QuizPublished(ctx context.Context, evt QuizPublishedEvent) error
}

// RedisNotifier 通过 redis 频道发布事件，由通知服务消费
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{Client: client, Channel: channel}
}

func (n *RedisNotifier) QuizPublished(ctx context.Context, evt QuizPublishedEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return n.Client.Publish(ctx, n.Channel, payload).Err()
}

// LogNotifier 只记录日志，未启用 redis 时使用
type LogNotifier struct{}

func (LogNotifier) QuizPublished(_ context.Context, evt QuizPublishedEvent) error {
	logger.Log.Info("quiz published",
		zap.String("quiz_id", evt.QuizID),
		zap.Uint("course_id", evt.CourseID),
		zap.Int("recipients", len(evt.Recipients)),
	)
	return nil
}
