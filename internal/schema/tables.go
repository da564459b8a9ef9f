package schema

var Profiles = MustDefine("profiles",
	Column{Name: "email", Type: "text", NotNull: true, Default: "''"},
	Column{Name: "display_name", Type: "text"},
)

var Projects = MustDefine("projects",
	Column{Name: "owner_id", Type: "uuid", NotNull: true, References: "profiles(id)", OnDelete: "CASCADE", Index: true},
	Column{Name: "name", Type: "text", NotNull: true},
	Column{Name: "description", Type: "text"},
).WithUnique("owner_id", "name")

// Tables returns the application tables in dependency order.
func Tables() []Table {
	return []Table{Profiles, Projects}
}
