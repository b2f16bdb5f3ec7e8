package generator

// Config drives the synthetic IAM dataset generator.
type Config struct {
	NumUsers          int
	NumGroups         int
	NumDirectories    int
	FilesPerDirectory int
	MembershipChance  float64
	GrantChance       float64
	DirectGrantChance float64
	BatchSize         int
	Seed              int64
}

// DefaultConfig returns settings producing a dataset a few orders of magnitude larger
// than the shipped sample while staying quick to load.
func DefaultConfig() Config {
	return Config{
		NumUsers:          1000,
		NumGroups:         12,
		NumDirectories:    60,
		FilesPerDirectory: 15,
		MembershipChance:  0.2,
		GrantChance:       0.3,
		DirectGrantChance: 0.05,
		BatchSize:         500,
		Seed:              42,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.NumUsers <= 0 {
		c.NumUsers = def.NumUsers
	}
	if c.NumGroups <= 0 {
		c.NumGroups = def.NumGroups
	}
	if c.NumDirectories < 0 {
		c.NumDirectories = def.NumDirectories
	}
	if c.FilesPerDirectory <= 0 {
		c.FilesPerDirectory = def.FilesPerDirectory
	}
	if c.MembershipChance < 0 {
		c.MembershipChance = def.MembershipChance
	}
	if c.GrantChance < 0 {
		c.GrantChance = def.GrantChance
	}
	if c.DirectGrantChance < 0 {
		c.DirectGrantChance = def.DirectGrantChance
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	return c
}
