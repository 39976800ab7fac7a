package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	AnalysisChanged bool
	NewAnalysis     AnalysisConfig

	SchedulerChanged bool
	NewScheduler     SchedulerConfig

	TelegramChanged bool
	NewAllowFrom    []int64
	NewNotifyChat   int64

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.AnalysisChanged || d.SchedulerChanged || d.TelegramChanged
}

// Diff compares two configs and returns what changed. Analysis fetch
// settings are excluded; the fetcher is built once at startup.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Analysis.MaxCompetitors != new.Analysis.MaxCompetitors ||
		old.Analysis.Language != new.Analysis.Language {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewScheduler = new.Scheduler
	}

	if !reflect.DeepEqual(old.Telegram.AllowFrom, new.Telegram.AllowFrom) ||
		old.Telegram.NotifyChat != new.Telegram.NotifyChat {
		d.TelegramChanged = true
		d.NewAllowFrom = new.Telegram.AllowFrom
		d.NewNotifyChat = new.Telegram.NotifyChat
	}

	// Non-reloadable warnings
	if old.Telegram.Token != new.Telegram.Token {
		d.NonReloadable = append(d.NonReloadable, "telegram.token")
	}
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}
	if old.NATS.Port != new.NATS.Port {
		d.NonReloadable = append(d.NonReloadable, "nats.port")
	}
	if old.NATS.DataDir != new.NATS.DataDir {
		d.NonReloadable = append(d.NonReloadable, "nats.data_dir")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.Jobs.Workers != new.Jobs.Workers {
		d.NonReloadable = append(d.NonReloadable, "jobs.workers")
	}
	if old.Analysis.FetchTimeout != new.Analysis.FetchTimeout {
		d.NonReloadable = append(d.NonReloadable, "analysis.fetch_timeout")
	}
	if old.Analysis.UserAgent != new.Analysis.UserAgent {
		d.NonReloadable = append(d.NonReloadable, "analysis.user_agent")
	}

	return d
}
