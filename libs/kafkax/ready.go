package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck succeeds when any configured broker accepts a connection and,
// when topics are given, reports partitions for each of them.
func ReadyCheck(brokers string, topics ...string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var errs []error
		for _, addr := range list {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				continue
			}
			defer conn.Close()
			if len(topics) == 0 {
				return nil
			}
			partitions, err := conn.ReadPartitions(topics...)
			if err != nil {
				return fmt.Errorf("read partitions: %w", err)
			}
			seen := map[string]bool{}
			for _, p := range partitions {
				seen[p.Topic] = true
			}
			for _, t := range topics {
				if !seen[t] {
					return fmt.Errorf("topic %s not found", t)
				}
			}
			return nil
		}
		return errors.Join(errs...)
	}
}
