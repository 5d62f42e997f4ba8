package overlay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Palmstroemen/MyOS/internal/clinic"
)

// OverlayNode is both the physical-passthrough and the virtual-embryo
// directory node: which behavior applies is decided per call from
// whether relPath currently exists on disk, never cached on the node
// itself, since a birth can happen concurrently on another path.
type OverlayNode struct {
	fs.Inode

	fsys    *Filesystem
	relPath string // project-relative, slash-separated, "" at the root
}

var (
	_ fs.NodeGetattrer = (*OverlayNode)(nil)
	_ fs.NodeLookuper  = (*OverlayNode)(nil)
	_ fs.NodeReaddirer = (*OverlayNode)(nil)
	_ fs.NodeMkdirer   = (*OverlayNode)(nil)
	_ fs.NodeCreater   = (*OverlayNode)(nil)
	_ fs.NodeOpener    = (*OverlayNode)(nil)
	_ fs.NodeReader    = (*OverlayNode)(nil)
	_ fs.NodeWriter    = (*OverlayNode)(nil)
	_ fs.NodeFlusher   = (*OverlayNode)(nil)
	_ fs.NodeReleaser  = (*OverlayNode)(nil)
	_ fs.NodeFsyncer   = (*OverlayNode)(nil)
	_ fs.NodeSetattrer = (*OverlayNode)(nil)
	_ fs.NodeUnlinker  = (*OverlayNode)(nil)
	_ fs.NodeRmdirer   = (*OverlayNode)(nil)
)

func (n *OverlayNode) physicalPath() string {
	if n.relPath == "" {
		return n.fsys.Root
	}
	return filepath.Join(n.fsys.Root, filepath.FromSlash(n.relPath))
}

func (n *OverlayNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if info, err := os.Stat(n.physicalPath()); err == nil {
		fillAttr(&out.Attr, info)
		n.fsys.setOwner(&out.Attr)
		return 0
	}

	// A not-yet-physical path only ever represents a virtual embryo
	// directory; a file never exists without a backing inode.
	fillEmbryoAttr(&out.Attr, n.fsys.mountTime)
	n.fsys.setOwner(&out.Attr)
	return 0
}

func (n *OverlayNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childRel := joinRel(n.relPath, name)
	physPath := filepath.Join(n.fsys.Root, filepath.FromSlash(childRel))

	if info, err := os.Stat(physPath); err == nil {
		fillAttr(&out.Attr, info)
		n.fsys.setOwner(&out.Attr)
		child := &OverlayNode{fsys: n.fsys, relPath: childRel}
		return n.NewInode(ctx, child, fs.StableAttr{Mode: fuseTypeFor(info)}), 0
	}

	if _, ok := n.fsys.embryoSubtree(childRel); ok {
		fillEmbryoAttr(&out.Attr, n.fsys.mountTime)
		n.fsys.setOwner(&out.Attr)
		child := &OverlayNode{fsys: n.fsys, relPath: childRel}
		return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR}), 0
	}

	return nil, syscall.ENOENT
}

func (n *OverlayNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	seen := map[string]bool{}
	var entries []fuse.DirEntry

	if des, err := os.ReadDir(n.physicalPath()); err == nil {
		names := make([]string, 0, len(des))
		for _, d := range des {
			names = append(names, d.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			seen[name] = true
			mode := uint32(syscall.S_IFREG)
			if info, err := os.Stat(filepath.Join(n.physicalPath(), name)); err == nil && info.IsDir() {
				mode = syscall.S_IFDIR
			}
			entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
		}
	}

	if subtree, ok := n.fsys.embryoSubtree(n.relPath); ok {
		names := make([]string, 0, len(subtree))
		for name := range subtree {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if seen[name] {
				continue
			}
			childRel := joinRel(n.relPath, name)
			if !n.fsys.canWrite(childRel) {
				continue
			}
			entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFDIR})
		}
	}

	return fs.NewListDirStream(entries), 0
}

func (n *OverlayNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childRel := joinRel(n.relPath, name)
	if !n.fsys.canWrite(childRel) {
		return nil, syscall.EACCES
	}

	physPath := filepath.Join(n.fsys.Root, filepath.FromSlash(childRel))
	if _, err := os.Stat(physPath); err == nil {
		return nil, syscall.EEXIST
	}

	if _, err := n.fsys.Clinic.Birth(childRel); err != nil {
		if !errors.Is(err, clinic.ErrNoTemplate) {
			return nil, mapClinicErr(err)
		}

		// name itself isn't a template entry; if the containing
		// directory is still a virtual embryo, birth it first so its
		// sibling template contents aren't lost underneath the new,
		// plain directory.
		parentPhys := n.physicalPath()
		if _, err := os.Stat(parentPhys); err != nil {
			if _, err := n.fsys.Clinic.Birth(n.relPath); err != nil {
				if !errors.Is(err, clinic.ErrNoTemplate) {
					return nil, mapClinicErr(err)
				}
				if err := os.MkdirAll(parentPhys, 0o755); err != nil {
					return nil, syscall.EIO
				}
			}
		}

		if err := os.MkdirAll(physPath, os.FileMode(mode)|0o700); err != nil {
			return nil, syscall.EIO
		}
	}

	info, err := os.Stat(physPath)
	if err != nil {
		return nil, syscall.EIO
	}
	fillAttr(&out.Attr, info)
	n.fsys.setOwner(&out.Attr)
	child := &OverlayNode{fsys: n.fsys, relPath: childRel}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR}), 0
}

// Create births the containing directory if it is still a virtual
// embryo, then opens the named file with O_CREATE. The new file name
// itself is never matched against a template: only directories are
// ever embryos.
func (n *OverlayNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childRel := joinRel(n.relPath, name)
	if !n.fsys.canWrite(childRel) {
		return nil, nil, 0, syscall.EACCES
	}

	parentPhys := n.physicalPath()
	if _, err := os.Stat(parentPhys); err != nil {
		if _, err := n.fsys.Clinic.Birth(n.relPath); err != nil {
			if !errors.Is(err, clinic.ErrNoTemplate) {
				return nil, nil, 0, mapClinicErr(err)
			}
			if err := os.MkdirAll(parentPhys, 0o755); err != nil {
				return nil, nil, 0, syscall.EIO
			}
		}
	}

	childPhys := filepath.Join(parentPhys, name)
	fh, err := os.OpenFile(childPhys, int(flags)|os.O_CREATE, os.FileMode(mode))
	if err != nil {
		return nil, nil, 0, syscall.EIO
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, nil, 0, syscall.EIO
	}
	fillAttr(&out.Attr, info)
	n.fsys.setOwner(&out.Attr)

	child := &OverlayNode{fsys: n.fsys, relPath: childRel}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG})
	return inode, &passthroughFile{f: fh}, 0, 0
}

func (n *OverlayNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if !n.fsys.canRead(n.relPath) {
		return nil, 0, syscall.EACCES
	}
	fh, err := os.OpenFile(n.physicalPath(), int(flags), 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, syscall.ENOENT
		}
		return nil, 0, syscall.EIO
	}
	return &passthroughFile{f: fh}, 0, 0
}

func (n *OverlayNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	pf, ok := f.(*passthroughFile)
	if !ok {
		return nil, syscall.EIO
	}
	return pf.readAt(dest, off)
}

func (n *OverlayNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if !n.fsys.canWrite(n.relPath) {
		return 0, syscall.EACCES
	}
	pf, ok := f.(*passthroughFile)
	if !ok {
		return 0, syscall.EIO
	}
	return pf.writeAt(data, off)
}

func (n *OverlayNode) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno {
	pf, ok := f.(*passthroughFile)
	if !ok {
		return 0
	}
	return pf.flush()
}

func (n *OverlayNode) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	pf, ok := f.(*passthroughFile)
	if !ok {
		return 0
	}
	return pf.release()
}

func (n *OverlayNode) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	pf, ok := f.(*passthroughFile)
	if !ok {
		return 0
	}
	return pf.fsync()
}

func (n *OverlayNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if !n.fsys.canWrite(n.relPath) {
		return syscall.EACCES
	}

	physPath := n.physicalPath()
	if size, ok := in.GetSize(); ok {
		if pf, ok := f.(*passthroughFile); ok {
			if errno := pf.truncate(size); errno != 0 {
				return errno
			}
		} else if err := os.Truncate(physPath, int64(size)); err != nil {
			return syscall.EIO
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := os.Chmod(physPath, os.FileMode(mode)); err != nil {
			return syscall.EIO
		}
	}

	info, err := os.Stat(physPath)
	if err != nil {
		return syscall.EIO
	}
	fillAttr(&out.Attr, info)
	n.fsys.setOwner(&out.Attr)
	return 0
}

func (n *OverlayNode) Unlink(ctx context.Context, name string) syscall.Errno {
	childRel := joinRel(n.relPath, name)
	if !n.fsys.canWrite(childRel) {
		return syscall.EACCES
	}
	if err := os.Remove(filepath.Join(n.fsys.Root, filepath.FromSlash(childRel))); err != nil {
		return syscall.EIO
	}
	return 0
}

func (n *OverlayNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	childRel := joinRel(n.relPath, name)
	if !n.fsys.canWrite(childRel) {
		return syscall.EACCES
	}
	if err := os.Remove(filepath.Join(n.fsys.Root, filepath.FromSlash(childRel))); err != nil {
		return syscall.EIO
	}
	return 0
}

// fillEmbryoAttr fills the stat of an unborn embryo directory: always
// dr-xr-xr-x, two links, a nominal directory size, and every timestamp
// pinned to the mount time rather than wall-clock now.
func fillEmbryoAttr(out *fuse.Attr, mountTime time.Time) {
	out.Mode = syscall.S_IFDIR | 0555
	out.Nlink = 2
	out.Size = 4096
	out.SetTimes(&mountTime, &mountTime, &mountTime)
}

func fillAttr(out *fuse.Attr, info os.FileInfo) {
	out.Mode = fuseTypeFor(info) | uint32(info.Mode().Perm())
	out.Size = uint64(info.Size())
	mtime := info.ModTime()
	out.SetTimes(nil, &mtime, &mtime)
}

func fuseTypeFor(info os.FileInfo) uint32 {
	if info.IsDir() {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

func mapClinicErr(err error) syscall.Errno {
	switch {
	case errors.Is(err, clinic.ErrInvalidPath):
		return syscall.EACCES
	case errors.Is(err, clinic.ErrNoTemplate):
		return syscall.ENOENT
	case errors.Is(err, clinic.ErrUnsafeTemplate):
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}
