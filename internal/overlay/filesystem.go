// Package overlay implements the Blueprint Overlay: a FUSE node tree
// that passes real project content straight through to disk while
// unborn template directories ("embryos") stay purely virtual until a
// write operation births them.
package overlay

import (
	"log"
	"os"
	"os/user"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Palmstroemen/MyOS/internal/acl"
	"github.com/Palmstroemen/MyOS/internal/clinic"
	"github.com/Palmstroemen/MyOS/internal/project"
	"github.com/Palmstroemen/MyOS/internal/template"
)

// Filesystem holds the state shared by every node in one mounted
// project: the project's physical root, its birth clinic, its ACL
// policy, and the acting user's resolved roles.
type Filesystem struct {
	Root          string
	TemplatesDir  string
	TemplateNames []string

	Clinic *clinic.Clinic
	Policy *acl.Policy
	Roles  []string

	uid, gid  uint32
	mountTime time.Time

	server *fuse.Server
	cache  embryoCache
}

// embryoCache memoizes the scanned template tree until explicitly
// invalidated; template scanning walks every configured template
// directory and there is no reason to repeat it on every Readdir.
type embryoCache struct {
	mu   sync.RWMutex
	tree template.Tree
	have bool
}

func (e *embryoCache) get(templatesDir string, names []string) template.Tree {
	e.mu.RLock()
	if e.have {
		t := e.tree
		e.mu.RUnlock()
		return t
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.have {
		e.tree = template.Scan(templatesDir, names)
		e.have = true
	}
	return e.tree
}

// Invalidate forces the next embryo lookup to rescan the template
// directories. Nothing in this package calls it, so a mount keeps the
// tree from its first scan.
func (e *embryoCache) Invalidate() {
	e.mu.Lock()
	e.have = false
	e.tree = nil
	e.mu.Unlock()
}

// New builds a Filesystem for the project rooted at root, resolving
// its templates, ACL policy and acting roles via getenv (MYOS_ROLES
// overrides the OS username lookup; MYOS_TEMPLATES_DIR overrides the
// default <root>/Templates).
func New(root string, getenv func(string) string) (*Filesystem, error) {
	cfg := project.NewWithEnv(root, getenv)
	templatesDir := template.ResolveDir(root, getenv)

	policy, err := acl.BuildFromProject(root, cfg.Templates, getenv)
	if err != nil {
		return nil, err
	}

	fsys := &Filesystem{
		Root:          root,
		TemplatesDir:  templatesDir,
		TemplateNames: cfg.Templates,
		Clinic:        clinic.New(root, templatesDir, cfg.Templates),
		Policy:        policy,
		Roles:         resolveRoles(policy, getenv),
		uid:           uint32(os.Getuid()),
		gid:           uint32(os.Getgid()),
		mountTime:     time.Now(),
	}
	return fsys, nil
}

func resolveRoles(policy *acl.Policy, getenv func(string) string) []string {
	if raw := getenv("MYOS_ROLES"); raw != "" {
		var roles []string
		for _, r := range strings.Split(raw, ",") {
			if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
				roles = append(roles, r)
			}
		}
		return roles
	}

	u, err := user.Current()
	if err != nil {
		log.Printf("overlay: resolving current user: %v", err)
		return nil
	}
	set := policy.RolesForUser(u.Username)
	roles := make([]string, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	return roles
}

func (f *Filesystem) embryoTree() template.Tree {
	return f.cache.get(f.TemplatesDir, f.TemplateNames)
}

// embryoSubtree returns the embryo tree rooted at relPath (empty for
// the project root), and whether relPath names a template-provided
// directory at all.
func (f *Filesystem) embryoSubtree(relPath string) (template.Tree, bool) {
	tree := f.embryoTree()
	if relPath == "" {
		return tree, true
	}
	cur := tree
	for _, seg := range strings.Split(relPath, "/") {
		next, ok := cur[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (f *Filesystem) canAccess(relPath, right string) bool {
	for _, role := range f.Roles {
		if f.Policy.CanAccess(role, "/"+relPath, right) {
			return true
		}
	}
	return false
}

func (f *Filesystem) canRead(relPath string) bool  { return f.canAccess(relPath, "read") }
func (f *Filesystem) canWrite(relPath string) bool { return f.canAccess(relPath, "write") }

func (f *Filesystem) setOwner(out *fuse.Attr) {
	out.Uid = f.uid
	out.Gid = f.gid
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}

// Mount mounts the project at root onto mountpoint and returns the
// running FUSE server. Entry/attr timeouts are kept short: births and
// propagate can change what the kernel would otherwise cache.
func Mount(mountpoint, root string, getenv func(string) string, debug bool) (*fuse.Server, *Filesystem, error) {
	fsys, err := New(root, getenv)
	if err != nil {
		return nil, nil, err
	}

	rootNode := &OverlayNode{fsys: fsys, relPath: ""}

	attrTimeout := time.Second
	entryTimeout := time.Second
	opts := &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			Name:   "myos",
			FsName: "myos",
			Debug:  debug,
		},
	}

	server, err := fs.Mount(mountpoint, rootNode, opts)
	if err != nil {
		return nil, nil, err
	}
	fsys.server = server
	return server, fsys, nil
}
