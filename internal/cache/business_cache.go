package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// BusinessLoader reads the active business config from durable storage
type BusinessLoader interface {
	GetActive(ctx context.Context) (*domain.BusinessConfig, error)
}

// BusinessCache keeps the business identity used in prompts in memory.
// Reads never hit the database; updates are applied by a single background
// processor so a slow refresh never blocks a live call.
type BusinessCache struct {
	loader   BusinessLoader
	fallback config.BusinessInfo

	current  config.BusinessInfo
	loadedAt time.Time
	mutex    sync.RWMutex

	updateChan chan *domain.BusinessConfig
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewBusinessCache creates a cache that serves fallback until the first load.
// loader may be nil when no database is configured.
func NewBusinessCache(loader BusinessLoader, fallback config.BusinessInfo) *BusinessCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &BusinessCache{
		loader:     loader,
		fallback:   fallback,
		current:    fallback,
		updateChan: make(chan *domain.BusinessConfig, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.startAsyncProcessor()
	return c
}

// BusinessInfo returns a copy of the cached business identity
func (c *BusinessCache) BusinessInfo(context.Context) config.BusinessInfo {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var info config.BusinessInfo
	if err := copier.Copy(&info, &c.current); err != nil {
		return c.fallback
	}
	return info
}

// LoadedAt reports when the cache last applied a stored config
func (c *BusinessCache) LoadedAt() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.loadedAt
}

// Refresh loads the active config and queues it for the processor
func (c *BusinessCache) Refresh(ctx context.Context) error {
	if c.loader == nil {
		return nil
	}
	cfg, err := c.loader.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load business config: %w", err)
	}
	if cfg == nil {
		logger.Base().Debug("No business config stored, keeping env values")
		return nil
	}
	return c.UpdateAsync(cfg)
}

// UpdateAsync queues cfg to replace the cached identity
func (c *BusinessCache) UpdateAsync(cfg *domain.BusinessConfig) error {
	if cfg == nil {
		return fmt.Errorf("business config cannot be nil")
	}

	select {
	case <-c.ctx.Done():
		return fmt.Errorf("cache is shutdown")
	default:
	}

	select {
	case c.updateChan <- cfg:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("cache is shutdown")
	default:
		return fmt.Errorf("business cache update queue is full")
	}
}

// StartRefresh reloads the config every interval until ctx is done
func (c *BusinessCache) StartRefresh(ctx context.Context, interval time.Duration) {
	if c.loader == nil || interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				if err := c.Refresh(refreshCtx); err != nil {
					logger.Base().Warn("Business config refresh failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

func (c *BusinessCache) startAsyncProcessor() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case cfg := <-c.updateChan:
				c.apply(cfg)
			}
		}
	}()
}

// apply overlays the stored config on the env fallback; blank stored fields
// keep the fallback value.
func (c *BusinessCache) apply(cfg *domain.BusinessConfig) {
	next := c.fallback
	var stored config.BusinessInfo
	if err := copier.Copy(&stored, cfg); err != nil {
		logger.Base().Error("Failed to copy business config", zap.Error(err))
		return
	}
	if stored.CEOName != "" {
		next.CEOName = stored.CEOName
	}
	if stored.CompanyName != "" {
		next.CompanyName = stored.CompanyName
	}
	if stored.CompanyDescription != "" {
		next.CompanyDescription = stored.CompanyDescription
	}

	c.mutex.Lock()
	c.current = next
	c.loadedAt = time.Now()
	c.mutex.Unlock()

	logger.Base().Info("Business config updated",
		zap.String("ceo_name", next.CEOName),
		zap.String("company_name", next.CompanyName))
}

// Shutdown stops the processor and any refresh loop
func (c *BusinessCache) Shutdown() {
	c.cancel()
	c.wg.Wait()
	logger.Base().Info("BusinessCache shutdown completed")
}
