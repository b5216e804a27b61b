package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

func TestGoBreakerAdapter(t *testing.T) {
	logger := logging.GetGlobalLogger()

	t.Run("basic operation", func(t *testing.T) {
		cb := NewGoBreaker("test-basic", Config{
			MaxFailures:           2,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
			SuccessThreshold:      1,
		}, logger)

		assert.Equal(t, StateClosed, cb.State())

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)

		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("circuit opens after failures", func(t *testing.T) {
		cb := NewGoBreaker("test-failures", Config{
			MaxFailures:           3,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
			SuccessThreshold:      1,
		}, logger)

		for i := 0; i < 3; i++ {
			err := cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure %d", i)
			})
			assert.Error(t, err)
		}

		assert.Equal(t, StateOpen, cb.State())
		assert.True(t, cb.IsOpen())

		// Open circuit rejects without invoking the function
		err := cb.Execute(context.Background(), func() error {
			t.Fatal("This should not be called")
			return nil
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "open")
	})

	t.Run("circuit recovers through half-open", func(t *testing.T) {
		cb := NewGoBreaker("test-half-open", Config{
			MaxFailures:           2,
			Timeout:               50 * time.Millisecond,
			MaxConcurrentRequests: 1,
			SuccessThreshold:      1,
		}, logger)

		for i := 0; i < 2; i++ {
			cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure")
			})
		}
		assert.Equal(t, StateOpen, cb.State())

		// After the timeout a probe request is allowed through
		time.Sleep(60 * time.Millisecond)

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("auth and validation errors do not trip the breaker", func(t *testing.T) {
		cb := NewGoBreaker("test-client-errors", Config{
			MaxFailures:           2,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
			SuccessThreshold:      1,
		}, logger)

		rejections := []error{
			errors.AuthError("invalid_grant"),
			errors.ValidationError("bad request"),
			errors.NotFoundError("thing"),
			errors.AuthError("invalid_client"),
		}

		for _, rejection := range rejections {
			err := cb.Execute(context.Background(), func() error {
				return rejection
			})
			assert.Error(t, err)
		}

		// Credential problems are the caller's fault, circuit stays closed
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("invalid config falls back to defaults", func(t *testing.T) {
		cb := NewGoBreaker("test-invalid-config", Config{}, logger)

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestGoBreakerAdapter_Stats(t *testing.T) {
	cb := NewGoBreaker("test-stats", DefaultConfig(), logging.GetGlobalLogger())

	cb.Execute(context.Background(), func() error { return nil })
	cb.Execute(context.Background(), func() error { return fmt.Errorf("boom") })

	stats := cb.Stats()
	assert.Equal(t, "test-stats", stats.Name)
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 1, stats.Failures)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, OAuthConfig.Validate())

	assert.Error(t, Config{Timeout: time.Second, MaxConcurrentRequests: 1, SuccessThreshold: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, MaxConcurrentRequests: 1, SuccessThreshold: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second, SuccessThreshold: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
}
