package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Subscription is a browser push endpoint registered by an admin.
type Subscription struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the JSON payload the admin service worker renders.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

var (
	// ErrSubscriptionGone is returned when the push service answers 404 or 410.
	ErrSubscriptionGone = errors.New("push subscription gone")
	// ErrUnknownSubscription is returned by stores when no row matches an endpoint.
	ErrUnknownSubscription = errors.New("push subscription not found")
)

// DeliveryError describes a failed push to a single endpoint.
type DeliveryError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push to %s: status %d", shortEndpoint(e.Endpoint), e.StatusCode)
	}
	return fmt.Sprintf("push to %s: %v", shortEndpoint(e.Endpoint), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// VAPID holds the application server key pair and contact subject.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// GenerateVAPID creates a fresh key pair.
func GenerateVAPID(subject string) (VAPID, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPID{}, err
	}
	return VAPID{PublicKey: pub, PrivateKey: priv, Subject: subject}, nil
}

// Sender delivers encrypted Web Push messages.
type Sender struct {
	keys   VAPID
	ttl    time.Duration
	client webpush.HTTPClient
}

func NewSender(keys VAPID, ttl time.Duration, client *http.Client) *Sender {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Sender{keys: keys, ttl: ttl, client: client}
}

func (s *Sender) PublicKey() string { return s.keys.PublicKey }

func (s *Sender) Send(ctx context.Context, sub Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.keys.Subject,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             int(s.ttl.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return &DeliveryError{Endpoint: sub.Endpoint, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &DeliveryError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode, Err: ErrSubscriptionGone}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &DeliveryError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode}
	}
	return nil
}

// Store lists and prunes subscriptions.
type Store interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Deliverer is satisfied by *Sender.
type Deliverer interface {
	Send(ctx context.Context, sub Subscription, payload []byte) error
}

// Result summarises one fan-out.
type Result struct {
	Sent    int
	Removed int
	Failed  int
}

// Fanout pushes a message to every stored subscription.
type Fanout struct {
	store     Store
	deliverer Deliverer
	logger    *slog.Logger
}

func NewFanout(store Store, deliverer Deliverer, logger *slog.Logger) *Fanout {
	return &Fanout{store: store, deliverer: deliverer, logger: logger}
}

// Notify sends msg to all admins. Gone subscriptions are deleted; other
// delivery failures are joined into the returned error.
func (f *Fanout) Notify(ctx context.Context, msg Message) (Result, error) {
	var res Result
	subs, err := f.store.ListSubscriptions(ctx)
	if err != nil {
		return res, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return res, nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return res, err
	}

	var failures []error
	for _, sub := range subs {
		err := f.deliverer.Send(ctx, sub, payload)
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrSubscriptionGone):
			if derr := f.store.DeleteSubscription(ctx, sub.Endpoint); derr != nil && !errors.Is(derr, ErrUnknownSubscription) {
				f.logger.Error("failed to delete gone subscription", "err", derr, "username", sub.Username)
				failures = append(failures, derr)
				continue
			}
			res.Removed++
			f.logger.Info("push subscription removed", "username", sub.Username, "endpoint", shortEndpoint(sub.Endpoint))
		default:
			res.Failed++
			failures = append(failures, err)
		}
	}
	return res, errors.Join(failures...)
}

// shortEndpoint trims the opaque token from push endpoints for logs.
func shortEndpoint(endpoint string) string {
	if i := strings.LastIndex(endpoint, "/"); i > len("https://") {
		return endpoint[:i] + "/…"
	}
	return endpoint
}
