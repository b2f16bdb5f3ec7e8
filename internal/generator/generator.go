package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/iamgraph/internal/domain"
)

// Actions granted in generated datasets, in the order they are created.
var Actions = []string{domain.ActionViewFile, "modify_file", "delete_file"}

// RootDirectory is the collection every generated directory descends from.
const RootDirectory = "root"

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/vanshika/iamgraph"))

// StableID derives a name-based UUID for an entity of the given kind. The same kind
// and key always yield the same ID.
func StableID(kind, key string) string {
	return uuid.NewSHA1(namespace, []byte(kind+":"+key)).String()
}

// User is a generated identity.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Group is a generated user group.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory is a generated collection. Parent is empty only for the root.
type Directory struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Parent string `json:"parent,omitempty"`
}

// File is a generated file stored in Directory.
type File struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Directory string `json:"directory"`
}

// Membership places the user with Email in Group.
type Membership struct {
	Email string `json:"email"`
	Group string `json:"group"`
}

// GroupGrant lets a group perform Action on a directory and everything below it.
type GroupGrant struct {
	Group     string `json:"group"`
	Directory string `json:"directory"`
	Action    string `json:"action"`
}

// UserGrant lets a user perform Action on a single file.
type UserGrant struct {
	Email  string `json:"email"`
	File   string `json:"file"`
	Action string `json:"action"`
}

// Dataset contains a complete generated IAM graph.
type Dataset struct {
	Users       []User       `json:"users"`
	Groups      []Group      `json:"groups"`
	Directories []Directory  `json:"directories"`
	Files       []File       `json:"files"`
	Memberships []Membership `json:"memberships"`
	GroupGrants []GroupGrant `json:"groupGrants"`
	UserGrants  []UserGrant  `json:"userGrants"`
}

// Generator produces synthetic IAM data shaped like the shipped sample dataset.
type Generator struct {
	cfg       Config
	rand      *rand.Rand
	fragments nameFragments
}

// New returns a configured Generator instance. A zero seed picks a random one.
func New(cfg Config) *Generator {
	cfg = cfg.withDefaults()
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:       cfg,
		rand:      rand.New(rand.NewSource(cfg.Seed)),
		fragments: defaultNameFragments(),
	}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Generate synthesises a dataset. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	var ds Dataset

	ds.Groups = g.groups()
	ds.Directories = g.directories(ds.Groups)

	files, err := g.files(ctx, ds.Directories)
	if err != nil {
		return Dataset{}, err
	}
	ds.Files = files

	for i := 0; i < g.cfg.NumUsers; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		ds.Users = append(ds.Users, g.user(i))
	}

	ds.Memberships = g.memberships(ds.Users, ds.Groups)
	ds.GroupGrants = g.groupGrants(ds.Groups, ds.Directories)
	ds.UserGrants = g.userGrants(ds.Users, ds.Files)
	return ds, nil
}

func (g *Generator) groups() []Group {
	groups := make([]Group, 0, g.cfg.NumGroups)
	for i := 0; i < g.cfg.NumGroups; i++ {
		name := g.fragments.teams[i%len(g.fragments.teams)]
		if i >= len(g.fragments.teams) {
			name = fmt.Sprintf("%s-%d", name, i/len(g.fragments.teams)+1)
		}
		groups = append(groups, Group{ID: StableID("group", name), Name: name})
	}
	return groups
}

// directories creates the root, one top-level directory per group and NumDirectories
// nested directories below randomly chosen existing ones.
func (g *Generator) directories(groups []Group) []Directory {
	dirs := []Directory{{ID: StableID("directory", RootDirectory), Path: RootDirectory}}
	for _, group := range groups {
		path := RootDirectory + "/" + group.Name
		dirs = append(dirs, Directory{ID: StableID("directory", path), Path: path, Parent: RootDirectory})
	}
	for i := 0; i < g.cfg.NumDirectories; i++ {
		parent := dirs[1+g.rand.Intn(len(dirs)-1)]
		project := g.fragments.projects[g.rand.Intn(len(g.fragments.projects))]
		path := fmt.Sprintf("%s/%s-%d", parent.Path, project, i+1)
		dirs = append(dirs, Directory{ID: StableID("directory", path), Path: path, Parent: parent.Path})
	}
	return dirs
}

// files fills every directory except the root. File paths are unique across the dataset.
func (g *Generator) files(ctx context.Context, dirs []Directory) ([]File, error) {
	seen := make(map[string]struct{})
	files := make([]File, 0, (len(dirs)-1)*g.cfg.FilesPerDirectory)
	for _, dir := range dirs[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < g.cfg.FilesPerDirectory; i++ {
			path := g.fileName()
			for {
				if _, dup := seen[path]; !dup {
					break
				}
				path = g.fileName()
			}
			seen[path] = struct{}{}
			files = append(files, File{ID: StableID("file", path), Path: path, Directory: dir.Path})
		}
	}
	return files, nil
}

func (g *Generator) fileName() string {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteByte(byte('a' + g.rand.Intn(26)))
	}
	b.WriteByte('.')
	b.WriteString(g.fragments.extensions[g.rand.Intn(len(g.fragments.extensions))])
	return b.String()
}

func (g *Generator) user(i int) User {
	first := g.fragments.first[g.rand.Intn(len(g.fragments.first))]
	last := g.fragments.last[g.rand.Intn(len(g.fragments.last))]
	domainName := g.fragments.domains[g.rand.Intn(len(g.fragments.domains))]
	email := fmt.Sprintf("%s.%s.%d@%s", strings.ToLower(first), strings.ToLower(last), i+1, domainName)
	return User{
		ID:       StableID("user", email),
		FullName: first + " " + last,
		Email:    email,
	}
}

// memberships puts every user in one group and, with MembershipChance, in a second one.
func (g *Generator) memberships(users []User, groups []Group) []Membership {
	out := make([]Membership, 0, len(users))
	for _, u := range users {
		primary := g.rand.Intn(len(groups))
		out = append(out, Membership{Email: u.Email, Group: groups[primary].Name})
		if len(groups) > 1 && g.rand.Float64() < g.cfg.MembershipChance {
			second := (primary + 1 + g.rand.Intn(len(groups)-1)) % len(groups)
			out = append(out, Membership{Email: u.Email, Group: groups[second].Name})
		}
	}
	return out
}

// groupGrants gives each group view access to its own top-level directory and, with
// GrantChance, one extra action on a random directory.
func (g *Generator) groupGrants(groups []Group, dirs []Directory) []GroupGrant {
	out := make([]GroupGrant, 0, len(groups))
	for _, group := range groups {
		out = append(out, GroupGrant{Group: group.Name, Directory: RootDirectory + "/" + group.Name, Action: domain.ActionViewFile})
		if g.rand.Float64() < g.cfg.GrantChance {
			dir := dirs[1+g.rand.Intn(len(dirs)-1)]
			action := Actions[g.rand.Intn(len(Actions))]
			if action == domain.ActionViewFile && dir.Path == RootDirectory+"/"+group.Name {
				continue
			}
			out = append(out, GroupGrant{Group: group.Name, Directory: dir.Path, Action: action})
		}
	}
	return out
}

// userGrants gives a user direct view access to a random file with DirectGrantChance.
func (g *Generator) userGrants(users []User, files []File) []UserGrant {
	var out []UserGrant
	if len(files) == 0 {
		return out
	}
	for _, u := range users {
		if g.rand.Float64() < g.cfg.DirectGrantChance {
			f := files[g.rand.Intn(len(files))]
			out = append(out, UserGrant{Email: u.Email, File: f.Path, Action: domain.ActionViewFile})
		}
	}
	return out
}

type nameFragments struct {
	first      []string
	last       []string
	domains    []string
	teams      []string
	projects   []string
	extensions []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:      []string{"Jane", "John", "Alex", "Priya", "Liu", "Maria", "Omar", "Sofia", "Noah", "Emma", "Lucas", "Mia", "Ava", "Ethan", "Zara"},
		last:       []string{"Doe", "Smith", "Chen", "Patel", "Garcia", "Khan", "Kim", "Ivanov", "Nguyen", "Silva", "Brown", "Lee"},
		domains:    []string{"example.com", "corp.example.com", "iam.example.org"},
		teams:      []string{"engineering", "finance", "sales", "marketing", "legal", "support", "research", "operations"},
		projects:   []string{"studio", "console", "reports", "payroll", "billing", "infra", "docs", "archive"},
		extensions: []string{"java", "ts", "py", "scala", "kt", "rs", "go", "csv", "pdf", "xlsx"},
	}
}
