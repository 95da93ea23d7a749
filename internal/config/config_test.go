package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caucion-rate-alerts/internal/rates"
)

func validConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{Interval: time.Minute, StartupDelay: 10 * time.Second},
		Market: MarketConfig{
			OpenHour: 10, OpenMinute: 30,
			CloseHour: 16, CloseMinute: 30,
			Weekdays: []string{"mon", "tue", "wed", "thu", "fri"},
		},
		PPI:      PPIConfig{Tenors: []string{"D1", "D2", "D3"}},
		Alerting: AlertingConfig{DeliveryTimeout: 10 * time.Second},
		Export:   ExportConfig{MaxDataPoints: 1000},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsFastInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.Interval = 10 * time.Second
	assert.Error(t, cfg.Validate())

	cfg.Scheduler.Interval = 30 * time.Second
	assert.NoError(t, cfg.Validate())
}

func TestValidatePublishRequiresChannel(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Publish = PublishConfig{Enabled: true, MinRisePoints: 5}
	assert.Error(t, cfg.Validate())

	cfg.Telegram.ChannelID = -1001234567890
	assert.NoError(t, cfg.Validate())
}

func TestMarketWindowRejectsInvertedHours(t *testing.T) {
	cfg := validConfig()
	cfg.Market.OpenHour = 17
	_, err := cfg.Market.Window()
	assert.Error(t, err)
}

func TestMarketWindowParsesWeekdays(t *testing.T) {
	cfg := validConfig()
	window, err := cfg.Market.Window()
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, window.Weekdays)
}

func TestMarketWindowRejectsUnknownWeekday(t *testing.T) {
	cfg := validConfig()
	cfg.Market.Weekdays = []string{"lunes"}
	_, err := cfg.Market.Window()
	assert.Error(t, err)
}

func TestTenorListNormalisesCase(t *testing.T) {
	cfg := validConfig()
	cfg.PPI.Tenors = []string{" d1", "D7 "}
	tenors, err := cfg.PPI.TenorList()
	require.NoError(t, err)
	assert.Equal(t, []rates.Tenor{rates.TenorD1, rates.TenorD7}, tenors)
}

func TestTenorListRejectsUnknown(t *testing.T) {
	cfg := validConfig()
	cfg.PPI.Tenors = []string{"D4"}
	_, err := cfg.PPI.TenorList()
	assert.Error(t, err)
}

func TestIsAdmin(t *testing.T) {
	tg := TelegramConfig{AdminIDs: []int64{11, 22}}
	assert.True(t, tg.IsAdmin(22))
	assert.False(t, tg.IsAdmin(33))
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 1000, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 50, cfg.ResolveMaxPoints(50))
}
