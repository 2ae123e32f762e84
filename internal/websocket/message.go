package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"campus-market/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ID is a user or product id that accepts either a JSON number or a
// numeric string.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*id = ID(v)
	return nil
}

// InboundMessage is a chat payload sent by a client.
type InboundMessage struct {
	SenderID   ID     `json:"sender_id" validate:"required,gt=0"`
	ReceiverID ID     `json:"receiver_id" validate:"required,gt=0"`
	Content    string `json:"content" validate:"required,max=1000"`
	ProductID  *ID    `json:"product_id,omitempty" validate:"omitempty,gt=0"`
}

// DecodeInbound parses and validates a client payload. Every failure wraps
// domain.ErrProtocol.
func DecodeInbound(data []byte) (*InboundMessage, error) {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, fmt.Errorf("%w: field %s failed %s", domain.ErrProtocol, fe.Field(), fe.Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	return &in, nil
}

// ChatMessage converts the payload into an unsaved domain message.
func (in *InboundMessage) ChatMessage() *domain.ChatMessage {
	msg := &domain.ChatMessage{
		SenderID:   int64(in.SenderID),
		ReceiverID: int64(in.ReceiverID),
		Content:    in.Content,
	}
	if in.ProductID != nil {
		productID := int64(*in.ProductID)
		msg.ProductID = &productID
	}
	return msg
}

// OutboundMessage is the payload fanned out to both participants and
// returned by the history API.
type OutboundMessage struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	ProductID  *int64 `json:"product_id"`
	Timestamp  string `json:"timestamp"`
}

func NewOutboundMessage(msg *domain.ChatMessage) OutboundMessage {
	return OutboundMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		ProductID:  msg.ProductID,
		Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
