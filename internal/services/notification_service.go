package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"friendsync/internal/config"
	"friendsync/internal/kafka"
	"friendsync/internal/models"
)

// NotificationKindFriendRequestSent 标识好友请求通知事件。
const NotificationKindFriendRequestSent = "friendRequestSent"

// FriendRequestNotification is the event payload produced to the
// notifications topic when a friend request is created.
type FriendRequestNotification struct {
	Kind        string    `json:"kind"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	RequestID   string    `json:"requestId"`
	Timestamp   time.Time `json:"timestamp"`
}

// NotificationService delivers best-effort notifications to the
// notification collaborator. Failures are reported to the caller, who is
// expected to log them and carry on; a lost notification never rolls back
// the operation that triggered it.
type NotificationService interface {
	FriendRequestSent(ctx context.Context, request *models.FriendRequest) error
}

type kafkaNotificationService struct {
	producer kafka.MessageProducer
	cfg      config.KafkaConfig
}

// NewKafkaNotificationService creates a NotificationService that produces
// events to the configured Kafka notifications topic.
func NewKafkaNotificationService(producer kafka.MessageProducer, cfg config.KafkaConfig) NotificationService {
	return &kafkaNotificationService{producer: producer, cfg: cfg}
}

// FriendRequestSent publishes a friendRequestSent event keyed by the
// recipient identity, so one consumer sees a given user's notifications
// in order.
func (s *kafkaNotificationService) FriendRequestSent(ctx context.Context, request *models.FriendRequest) error {
	event := FriendRequestNotification{
		Kind:        NotificationKindFriendRequestSent,
		SenderID:    request.SenderID,
		RecipientID: request.ReceiverID,
		RequestID:   request.ID,
		Timestamp:   time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化好友请求通知失败: %w", err)
	}

	topic := s.cfg.NotificationsTopic
	if err := s.producer.SendMessage(ctx, topic, []byte(request.ReceiverID), payload); err != nil {
		return fmt.Errorf("发送好友请求通知到 %s 失败: %w", topic, err)
	}
	return nil
}
