package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultAudioCacheSize bounds the number of cached clips
	DefaultAudioCacheSize = 100

	audioIDLength     = 12
	synthesizeTimeout = 10 * time.Second
)

// Synthesizer turns text into encoded audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioClip is a cached synthesized utterance
type AudioClip struct {
	ID        string
	Text      string
	Data      []byte
	CreatedAt time.Time
}

// AudioCache holds synthesized speech for playback by the telephony
// provider. Entries are keyed by a hash of the spoken text and never change
// once stored; when full, the earliest inserted entry is evicted.
type AudioCache struct {
	synth   Synthesizer
	metrics *observability.Metrics
	maxSize int

	clips map[string]*AudioClip
	order []string
	mu    sync.RWMutex
}

// NewAudioCache creates a cache that synthesizes misses with synth
func NewAudioCache(synth Synthesizer, maxSize int, metrics *observability.Metrics) *AudioCache {
	if maxSize <= 0 {
		maxSize = DefaultAudioCacheSize
	}
	return &AudioCache{
		synth:   synth,
		metrics: metrics,
		maxSize: maxSize,
		clips:   make(map[string]*AudioClip, maxSize),
	}
}

// AudioID returns the cache key for text
func AudioID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:audioIDLength]
}

// Get returns the audio stored under id
func (c *AudioCache) Get(id string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clip, ok := c.clips[id]
	if !ok {
		return nil, false
	}
	return clip.Data, true
}

// Len returns the number of cached clips
func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clips)
}

// Put stores data for text and returns its id. An existing entry is kept as is.
func (c *AudioCache) Put(text string, data []byte) string {
	id := AudioID(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.clips[id]; exists {
		return id
	}
	for len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.clips, oldest)
	}
	c.clips[id] = &AudioClip{ID: id, Text: text, Data: data, CreatedAt: time.Now()}
	c.order = append(c.order, id)
	return id
}

// Speak returns the id of audio for text, synthesizing it on a miss
func (c *AudioCache) Speak(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("cannot synthesize empty text")
	}
	id := AudioID(text)
	if _, ok := c.Get(id); ok {
		c.metrics.AudioCacheLookup("hit")
		return id, nil
	}
	c.metrics.AudioCacheLookup("miss")

	if c.synth == nil {
		return "", fmt.Errorf("no synthesizer configured")
	}

	synthCtx, cancel := context.WithTimeout(ctx, synthesizeTimeout)
	defer cancel()

	data, err := c.synth.Synthesize(synthCtx, text)
	if err != nil {
		c.metrics.AudioCacheLookup("error")
		logger.Base().Warn("Speech synthesis failed", zap.Error(err), zap.Int("text_length", len(text)))
		return "", fmt.Errorf("failed to synthesize speech: %w", err)
	}
	return c.Put(text, data), nil
}
