package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: per-guild
// engines already in flight keep their existing session and supervisor,
// so reconnect-budget and ring-size changes only take effect for engines
// started after the reload.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ReconnectChanged bool
	NewMaxRetries    int

	SourcesChanged bool
	SourceChanges  []SourceDiff
}

// SourceDiff describes what changed for a single named streaming source
// between two configs.
type SourceDiff struct {
	Name           string
	EnabledChanged bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Voice.ReconnectMaxRetries != new.Voice.ReconnectMaxRetries {
		d.ReconnectChanged = true
		d.NewMaxRetries = new.Voice.ReconnectMaxRetries
	}

	oldSources := make(map[string]SourceEntry, len(old.Sources))
	for _, s := range old.Sources {
		oldSources[s.Name] = s
	}
	newSources := make(map[string]SourceEntry, len(new.Sources))
	for _, s := range new.Sources {
		newSources[s.Name] = s
	}

	for name, oldSrc := range oldSources {
		newSrc, exists := newSources[name]
		if !exists {
			d.SourceChanges = append(d.SourceChanges, SourceDiff{Name: name, Removed: true})
			d.SourcesChanged = true
			continue
		}
		if oldSrc.Enabled != newSrc.Enabled {
			d.SourceChanges = append(d.SourceChanges, SourceDiff{Name: name, EnabledChanged: true})
			d.SourcesChanged = true
		}
	}
	for name := range newSources {
		if _, exists := oldSources[name]; !exists {
			d.SourceChanges = append(d.SourceChanges, SourceDiff{Name: name, Added: true})
			d.SourcesChanged = true
		}
	}

	return d
}
