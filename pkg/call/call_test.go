// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/loopholelabs/faceclient/pkg/wire"
)

var (
	testFailureErr = errors.New("test failure")
)

func testRequest() *wire.Packet {
	return wire.NewPacket(wire.CommandGetFeature, wire.NewImageData([]byte("image"), true, true, true))
}

func testResponse(serial int32) *wire.Packet {
	response := wire.NewPacket(wire.CommandGetFeatureAck, wire.NewFaceFeatures())
	response.Header.Serial = serial
	return response
}

func testDispatcher(t *testing.T) *Dispatcher {
	return NewDispatcher(2, 3, logging.Test(t, logging.Zerolog, t.Name()))
}

func TestCallResolve(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := testDispatcher(t)
	defer d.Close()

	c := New(testRequest(), wire.CommandGetFeatureAck, d)
	assert.False(t, c.Resolved())
	assert.Zero(t, c.Latency())

	response := testResponse(c.Serial())
	require.True(t, c.Resolve(response))
	require.False(t, c.Resolve(response))
	require.False(t, c.Fail(testFailureErr))

	actual, err := c.Wait()
	require.NoError(t, err)
	assert.Same(t, response, actual)
	assert.True(t, c.Resolved())
	assert.False(t, c.ResolvedAt().Before(c.Built()))

	features, err := c.Features()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), features.FaceNum)
}

func TestCallFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := testDispatcher(t)
	defer d.Close()

	c := New(testRequest(), wire.CommandGetFeatureAck, d)
	require.True(t, c.Fail(testFailureErr))
	require.False(t, c.Resolve(testResponse(c.Serial())))

	response, err := c.Wait()
	require.ErrorIs(t, err, testFailureErr)
	assert.Nil(t, response)

	_, err = c.Features()
	require.ErrorIs(t, err, testFailureErr)
}

func TestCallWaitBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := testDispatcher(t)
	defer d.Close()

	c := New(testRequest(), wire.CommandGetFeatureAck, d)
	response := testResponse(c.Serial())

	result := make(chan *wire.Packet, 1)
	go func() {
		p, err := c.Wait()
		assert.NoError(t, err)
		result <- p
	}()

	select {
	case <-result:
		t.Fatal("wait returned before resolution")
	case <-time.After(time.Millisecond * 50):
	}

	c.Resolve(response)
	select {
	case p := <-result:
		assert.Same(t, response, p)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resolution")
	}
}

func TestCallWaitTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("Elapsed", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)
		start := time.Now()
		_, err := c.WaitTimeout(time.Millisecond * 50)
		elapsed := time.Since(start)
		require.ErrorIs(t, err, WaitTimeoutErr)
		assert.GreaterOrEqual(t, elapsed, time.Millisecond*50)
		assert.Less(t, elapsed, time.Second)

		require.False(t, c.Resolve(testResponse(c.Serial())))
		_, err = c.Wait()
		require.ErrorIs(t, err, WaitTimeoutErr)
	})

	t.Run("ResolvedFirst", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)
		response := testResponse(c.Serial())
		go func() {
			time.Sleep(time.Millisecond * 20)
			c.Resolve(response)
		}()
		p, err := c.WaitTimeout(time.Second)
		require.NoError(t, err)
		assert.Same(t, response, p)
	})

	t.Run("NonPositive", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)
		_, err := c.WaitTimeout(0)
		require.ErrorIs(t, err, WaitTimeoutErr)
	})

	t.Run("Context", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
		defer cancel()
		_, err := c.WaitContext(ctx)
		require.ErrorIs(t, err, WaitTimeoutErr)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestCallAbandon(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := testDispatcher(t)
	defer d.Close()

	var abandoned []*Call
	record := func(c *Call) {
		abandoned = append(abandoned, c)
	}

	timedOut := New(testRequest(), wire.CommandGetFeatureAck, d)
	timedOut.OnAbandon(record)
	_, err := timedOut.WaitTimeout(time.Millisecond * 10)
	require.ErrorIs(t, err, WaitTimeoutErr)
	_, err = timedOut.WaitTimeout(time.Millisecond * 10)
	require.ErrorIs(t, err, WaitTimeoutErr)

	cancelled := New(testRequest(), wire.CommandGetFeatureAck, d)
	cancelled.OnAbandon(record)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cancelled.WaitContext(ctx)
	require.ErrorIs(t, err, context.Canceled)

	resolved := New(testRequest(), wire.CommandGetFeatureAck, d)
	resolved.OnAbandon(record)
	require.True(t, resolved.Resolve(testResponse(resolved.Serial())))
	_, err = resolved.WaitTimeout(0)
	require.NoError(t, err)

	failed := New(testRequest(), wire.CommandGetFeatureAck, d)
	failed.OnAbandon(record)
	require.True(t, failed.Fail(testFailureErr))
	_, err = failed.WaitTimeout(time.Millisecond)
	require.ErrorIs(t, err, testFailureErr)

	require.Len(t, abandoned, 2)
	assert.Same(t, timedOut, abandoned[0])
	assert.Same(t, cancelled, abandoned[1])
}

func TestCallObservers(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("BeforeResolution", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)
		response := testResponse(c.Serial())

		var wg sync.WaitGroup
		wg.Add(2)
		var order []string
		var mu sync.Mutex
		c.AddObserver(ObserverFuncs{
			Success: func(p *wire.Packet) {
				assert.Same(t, response, p)
				mu.Lock()
				order = append(order, "success")
				mu.Unlock()
				wg.Done()
			},
			Failure: func(err error) {
				t.Errorf("unexpected failure: %v", err)
			},
			Complete: func(done *Call) {
				assert.Same(t, c, done)
				mu.Lock()
				order = append(order, "complete")
				mu.Unlock()
				wg.Done()
			},
		})

		c.Resolve(response)
		wg.Wait()
		assert.Equal(t, []string{"success", "complete"}, order)
	})

	t.Run("AfterResolution", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)
		c.Fail(testFailureErr)

		var calls atomic.Int32
		failed := make(chan error, 1)
		c.AddObserver(ObserverFuncs{
			Failure: func(err error) {
				calls.Add(1)
				failed <- err
			},
		})

		select {
		case err := <-failed:
			require.ErrorIs(t, err, testFailureErr)
		case <-time.After(time.Second):
			t.Fatal("observer added after resolution was not dispatched")
		}
		time.Sleep(time.Millisecond * 20)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Removed", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)

		var called atomic.Bool
		token := c.AddObserver(ObserverFuncs{
			Complete: func(*Call) {
				called.Store(true)
			},
		})
		done := make(chan struct{})
		c.AddObserver(ObserverFuncs{
			Complete: func(*Call) {
				close(done)
			},
		})
		require.True(t, c.RemoveObserver(token))
		require.False(t, c.RemoveObserver(token))

		c.Resolve(testResponse(c.Serial()))
		<-done
		time.Sleep(time.Millisecond * 20)
		assert.False(t, called.Load())
	})

	t.Run("NotOnResolvingGoroutine", func(t *testing.T) {
		d := testDispatcher(t)
		defer d.Close()

		c := New(testRequest(), wire.CommandGetFeatureAck, d)

		release := make(chan struct{})
		finished := make(chan struct{})
		c.AddObserver(ObserverFuncs{
			Complete: func(*Call) {
				<-release
				close(finished)
			},
		})

		resolved := make(chan struct{})
		go func() {
			c.Resolve(testResponse(c.Serial()))
			close(resolved)
		}()
		select {
		case <-resolved:
		case <-time.After(time.Second):
			t.Fatal("resolve was stalled by a slow observer")
		}
		close(release)
		<-finished
	})
}

func TestCallTimestamps(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := testDispatcher(t)
	defer d.Close()

	c := New(testRequest(), wire.CommandGetFeatureAck, d)
	assert.True(t, c.Sent().IsZero())
	sent := time.Now()
	c.MarkSent(sent)
	assert.Equal(t, sent, c.Sent())

	time.Sleep(time.Millisecond * 5)
	c.Resolve(testResponse(c.Serial()))
	assert.GreaterOrEqual(t, c.Latency(), time.Millisecond*5)
	assert.Equal(t, c.ResolvedAt().Sub(c.Built()), c.Latency())
}
