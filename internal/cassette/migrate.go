package cassette

// Schema migrations run in order on the raw mapping, before typed
// reconstruction. Each step upgrades exactly one version hop; Migrate loops
// until the data reaches SchemaVersion. The 0.1 -> 1.0 step is metadata-only
// (field names and shapes were stable), but the table accepts field
// transformations for future hops.

type migration struct {
	from  string
	to    string
	apply func(map[string]any)
}

var migrations = []migration{
	{
		from: "0.1",
		to:   "1.0",
		apply: func(data map[string]any) {
			if session, ok := data["session"].(map[string]any); ok {
				if _, present := session["git_sha"]; !present {
					session["git_sha"] = nil
				}
			}
		},
	},
}

// Migrate upgrades a wire-format mapping in place to the current schema
// version. The version must already be known-supported; Read checks that
// before calling.
func Migrate(data map[string]any) map[string]any {
	version := asString(data["schema_version"])
	for version != SchemaVersion {
		advanced := false
		for _, m := range migrations {
			if m.from == version {
				m.apply(data)
				data["schema_version"] = m.to
				version = m.to
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}
	return data
}
