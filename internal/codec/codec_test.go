package codec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/richinex/counsel/model"
)

func sampleHistory() model.History {
	return model.History{
		model.SystemMessage("You are helpful."),
		model.UserMessage("hello"),
		model.AssistantMessage("hi there", map[string]string{"finish_reason": "stop", "model": "gpt"}),
		model.ToolMessage("get_current_time", "2026-01-02 10:00:00"),
		model.UserMessage(""),
		{Role: model.RoleUser, Text: "unicode ✓ 你好", Metadata: map[string]string{"lang": "zh"}},
	}
}

func TestRoundTripSizes(t *testing.T) {
	full := sampleHistory()
	cases := map[string]model.History{
		"empty": {},
		"one":   {model.UserMessage("only")},
		"many":  full,
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := New()
			data, err := c.Encode(h)
			require.NoError(t, err)

			got, err := c.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, h, got)
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	h := model.History{
		model.AssistantMessage("x", map[string]string{"b": "2", "a": "1", "c": "3"}),
	}
	c := New()
	first, err := c.Encode(h)
	require.NoError(t, err)
	second, err := c.Encode(h)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeResultNotAliased(t *testing.T) {
	c := New()
	first, err := c.Encode(model.History{model.UserMessage("first")})
	require.NoError(t, err)
	snapshot := append([]byte(nil), first...)

	_, err = c.Encode(model.History{model.UserMessage("second, and longer")})
	require.NoError(t, err)
	assert.Equal(t, snapshot, first)
}

func TestEncodeRejectsUnknownRole(t *testing.T) {
	_, err := New().Encode(model.History{{Role: "narrator", Text: "x"}})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDecodeCorrupt(t *testing.T) {
	c := New()
	data, err := c.Encode(sampleHistory())
	require.NoError(t, err)

	_, err = c.Decode(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = c.Decode([]byte("definitely not a snapshot"))
	assert.Error(t, err)
}

func TestDecodeUnknownRoleTag(t *testing.T) {
	var record []byte
	record = protowire.AppendTag(record, fieldRole, protowire.VarintType)
	record = protowire.AppendVarint(record, 99)
	record = protowire.AppendTag(record, fieldBody, protowire.BytesType)
	record = protowire.AppendBytes(record, nil)

	var data []byte
	data = protowire.AppendTag(data, fieldVersion, protowire.VarintType)
	data = protowire.AppendVarint(data, formatVersion)
	data = protowire.AppendTag(data, fieldMessage, protowire.BytesType)
	data = protowire.AppendBytes(data, record)

	_, err := New().Decode(data)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	c := New()
	data, err := c.Encode(model.History{model.UserMessage("keep me")})
	require.NoError(t, err)

	data = protowire.AppendTag(data, 42, protowire.BytesType)
	data = protowire.AppendString(data, "future field")

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep me", got[0].Text)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 2
	p := NewPool(size)
	ctx := context.Background()

	var inUse, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			n := inUse.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inUse.Add(-1)
			p.Release(c)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(size))
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	p := NewPool(1)
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPoolEncodeDecode(t *testing.T) {
	p := NewPool(0)
	assert.Equal(t, DefaultPoolSize, p.Size())

	ctx := context.Background()
	data, err := p.Encode(ctx, sampleHistory())
	require.NoError(t, err)
	got, err := p.Decode(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, sampleHistory(), got)
}
