package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/config"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"resty.dev/v3"
)

// Poller downloads market price CSVs from the desk's price distribution
// endpoint and drops them into the prices directory, where the file watcher
// picks them up like any hand-delivered file. The vendor publishes one file
// per bucket (afternoon marks and settlement) shortly after the bucket hour.
type Poller struct {
	c        *resty.Client
	dir      string
	interval time.Duration
	cal      *calendar.Calendar

	fetched map[string]struct{}

	logger logger.Logger
}

func NewPoller(cfg config.FeedConfig, dir string, cal *calendar.Calendar, logger logger.Logger) *Poller {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.BaseURL)

	return &Poller{
		c:        client,
		dir:      dir,
		interval: cfg.Interval,
		cal:      cal,
		fetched:  make(map[string]struct{}),
		logger:   logger,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	p.poll(ctx)

	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.poll(ctx)
		}
	}
}

// poll fetches every bucket file for today whose publication hour has passed
// and which we don't already have on disk.
func (p *Poller) poll(ctx context.Context) {
	now := time.Now().In(p.cal.Location())
	day := p.cal.Date(now)
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return
	}

	for _, bucket := range []int{p.cal.AfternoonCutoffHour(), p.cal.CloseCutoffHour()} {
		if now.Hour() < bucket {
			continue
		}
		name := fmt.Sprintf("market_prices_%s_%02d00.csv", calendar.TradingDayFilename(day), bucket)
		if err := p.fetch(ctx, name); err != nil {
			p.logger.Warnf("%s: can't fetch price file %s", err, name)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, name string) error {
	if _, ok := p.fetched[name]; ok {
		return nil
	}
	dst := filepath.Join(p.dir, name)
	if _, err := os.Stat(dst); err == nil {
		p.fetched[name] = struct{}{}
		return nil
	}

	resp, err := p.c.R().
		SetContext(ctx).
		Get("/" + name)
	if err != nil {
		return fmt.Errorf("%w: can't send request", err)
	}
	defer resp.Body.Close()

	p.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.StatusCode() == 404 {
		// not published yet, try again next tick
		return nil
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("unexpected status %s", resp.Status())
	}

	if err := p.write(dst, resp.Bytes()); err != nil {
		return err
	}

	p.fetched[name] = struct{}{}
	p.logger.Infof("fetched price file %s", name)
	return nil
}

// write lands the file atomically so the watcher never sees a partial CSV.
func (p *Poller) write(dst string, body []byte) error {
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("%w: can't write temp file", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("%w: can't move file into place", err)
	}
	return nil
}
