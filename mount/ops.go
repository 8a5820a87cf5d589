package mount

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
)

// Lookup resolves one path component under NodeId, the counterpart of the
// teacher's lookupCommon: on success the child's kernel refcount is
// incremented exactly once, balanced by a later Forget.
func (fs *FileSystem) Lookup(header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(header.NodeId)
	if st != fuse.OK {
		return st
	}
	child, err := dir.GetOrLoadChild(c, name)
	if err != nil {
		if eden.KindOf(err) == eden.NotFound {
			fillNegativeEntryOut(out)
			return fuse.OK
		}
		return toStatus(err)
	}
	attr, err := child.GetAttr(c)
	if err != nil {
		return toStatus(err)
	}
	fs.imap.IncFuseRefcount(child.InodeNum())
	fs.fillEntryOut(out, child.InodeNum(), attr)
	return fuse.OK
}

// Forget drops nlookup references the kernel is done with; once an
// inode's count reaches zero it is evicted from the InodeMap, matching
// the teacher's shouldForget/uninstantiateInode pair.
func (fs *FileSystem) Forget(nodeID uint64, nlookup uint64) {
	if fs.imap.DecFuseRefcount(nodeID, nlookup) {
		fs.imap.UnloadInode(nodeID)
	}
}

func (fs *FileSystem) GetAttr(input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	c := fs.newCtx(context.Background())
	inode, st := fs.getInode(input.NodeId)
	if st != fuse.OK {
		return st
	}
	attr, err := inode.GetAttr(c)
	if err != nil {
		return toStatus(err)
	}
	fs.fillAttrOut(out, input.NodeId, attr)
	return fuse.OK
}

func (fs *FileSystem) SetAttr(input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	c := fs.newCtx(context.Background())
	inode, st := fs.getInode(input.NodeId)
	if st != fuse.OK {
		return st
	}
	attr, err := inode.SetAttr(c, attrRequestFromFuse(input))
	if err != nil {
		return toStatus(err)
	}
	fs.fillAttrOut(out, input.NodeId, attr)
	return fuse.OK
}

func (fs *FileSystem) Mknod(input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(input.NodeId)
	if st != fuse.OK {
		return st
	}
	child, err := dir.Mknod(c, name, input.Mode)
	if err != nil {
		return toStatus(err)
	}
	attr, err := child.GetAttr(c)
	if err != nil {
		return toStatus(err)
	}
	fs.imap.IncFuseRefcount(child.InodeNum())
	fs.fillEntryOut(out, child.InodeNum(), attr)
	return fuse.OK
}

func (fs *FileSystem) Mkdir(input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(input.NodeId)
	if st != fuse.OK {
		return st
	}
	mode := (input.Mode &^ input.Umask) | syscall.S_IFDIR
	child, err := dir.Mkdir(c, name, mode)
	if err != nil {
		return toStatus(err)
	}
	attr, err := child.GetAttr(c)
	if err != nil {
		return toStatus(err)
	}
	fs.imap.IncFuseRefcount(child.InodeNum())
	fs.fillEntryOut(out, child.InodeNum(), attr)
	return fuse.OK
}

func (fs *FileSystem) Create(input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(input.NodeId)
	if st != fuse.OK {
		return st
	}
	child, err := dir.Create(c, name, modeForCreate(input.Mode, input.Umask))
	if err != nil {
		return toStatus(err)
	}
	attr, err := child.GetAttr(c)
	if err != nil {
		return toStatus(err)
	}
	fs.imap.IncFuseRefcount(child.InodeNum())
	fs.fillEntryOut(&out.EntryOut, child.InodeNum(), attr)
	out.OpenOut.Fh = child.InodeNum()
	return fuse.OK
}

func (fs *FileSystem) Symlink(header *fuse.InHeader, pointedTo, linkName string, out *fuse.EntryOut) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(header.NodeId)
	if st != fuse.OK {
		return st
	}
	child, err := dir.Symlink(c, linkName, pointedTo)
	if err != nil {
		return toStatus(err)
	}
	attr, err := child.GetAttr(c)
	if err != nil {
		return toStatus(err)
	}
	fs.imap.IncFuseRefcount(child.InodeNum())
	fs.fillEntryOut(out, child.InodeNum(), attr)
	return fuse.OK
}

func (fs *FileSystem) Readlink(header *fuse.InHeader) ([]byte, fuse.Status) {
	c := fs.newCtx(context.Background())
	inode, st := fs.getInode(header.NodeId)
	if st != fuse.OK {
		return nil, st
	}
	link, ok := inode.(*inodes.SymlinkInode)
	if !ok {
		return nil, fuse.EINVAL
	}
	target, err := link.Readlink(c)
	if err != nil {
		return nil, toStatus(err)
	}
	return []byte(target), fuse.OK
}

// Link always fails: hard links are not representable over this store,
// matching the core's own TreeInode.Link.
func (fs *FileSystem) Link(input *fuse.LinkIn, filename string, out *fuse.EntryOut) fuse.Status {
	return fuse.EPERM
}

func (fs *FileSystem) Unlink(header *fuse.InHeader, name string) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(header.NodeId)
	if st != fuse.OK {
		return st
	}
	if err := dir.Unlink(c, name); err != nil {
		return toStatus(err)
	}
	return fuse.OK
}

func (fs *FileSystem) Rmdir(header *fuse.InHeader, name string) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(header.NodeId)
	if st != fuse.OK {
		return st
	}
	if err := dir.Rmdir(c, name); err != nil {
		return toStatus(err)
	}
	return fuse.OK
}

func (fs *FileSystem) Rename(input *fuse.RenameIn, oldName, newName string) fuse.Status {
	c := fs.newCtx(context.Background())
	srcDir, st := fs.getDir(input.NodeId)
	if st != fuse.OK {
		return st
	}
	dstDir, st := fs.getDir(input.Newdir)
	if st != fuse.OK {
		return st
	}
	if err := srcDir.RenameChild(c, oldName, dstDir, newName); err != nil {
		return toStatus(err)
	}
	return fuse.OK
}

// Open marks fh as the file's own inode number: there is no separate
// file-handle state to track since ReadAt/WriteAt are already offset
// addressed against the Overlay. ".eden/api" is special-cased since it
// has no Overlay content of its own, only a per-open response buffer.
func (fs *FileSystem) Open(input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.NodeId == inodes.ApiInodeNum {
		return fs.apiOpen(out)
	}
	inode, st := fs.getInode(input.NodeId)
	if st != fuse.OK {
		return st
	}
	if _, ok := inode.(*inodes.FileInode); !ok {
		return fuse.EINVAL
	}
	out.Fh = input.NodeId
	return fuse.OK
}

func (fs *FileSystem) Read(input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	if v, ok := fs.apiHandles.Load(input.Fh); ok {
		return fs.apiRead(v.(*apiHandle), input.Offset, buf)
	}
	c := fs.newCtx(context.Background())
	inode, st := fs.getInode(input.Fh)
	if st != fuse.OK {
		return nil, st
	}
	f, ok := inode.(*inodes.FileInode)
	if !ok {
		return nil, fuse.EINVAL
	}
	n, err := f.ReadAt(c, buf, int64(input.Offset))
	if err != nil {
		return nil, toStatus(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (fs *FileSystem) Write(input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	if v, ok := fs.apiHandles.Load(input.Fh); ok {
		return fs.apiWrite(v.(*apiHandle), data), fuse.OK
	}
	c := fs.newCtx(context.Background())
	inode, st := fs.getInode(input.Fh)
	if st != fuse.OK {
		return 0, st
	}
	f, ok := inode.(*inodes.FileInode)
	if !ok {
		return 0, fuse.EINVAL
	}
	n, err := f.WriteAt(c, data, int64(input.Offset))
	if err != nil {
		return uint32(n), toStatus(err)
	}
	return uint32(n), fuse.OK
}

func (fs *FileSystem) Release(input *fuse.ReleaseIn) {
	fs.apiHandles.Delete(input.Fh)
}

func (fs *FileSystem) Flush(input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

// dirHandle is a point-in-time snapshot of a directory's children, taken
// at OpenDir, the same approach as the teacher's directorySnapshot: the
// kernel's readdir offset is opaque to us, so we simply hand out entries
// in order and remember how many have been consumed.
type dirHandle struct {
	mu       sync.Mutex
	inodeNum uint64
	entries  []inodes.DirListEntry
}

var nextDirHandle atomic.Uint64

func (fs *FileSystem) OpenDir(input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	c := fs.newCtx(context.Background())
	dir, st := fs.getDir(input.NodeId)
	if st != fuse.OK {
		return st
	}
	h := nextDirHandle.Add(1)
	fs.dirHandles.Store(h, &dirHandle{inodeNum: input.NodeId, entries: dir.ListEntries(c)})
	out.Fh = h
	return fuse.OK
}

func (fs *FileSystem) ReleaseDir(input *fuse.ReleaseIn) {
	fs.dirHandles.Delete(input.Fh)
}

func (fs *FileSystem) ReadDir(input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	v, ok := fs.dirHandles.Load(input.Fh)
	if !ok {
		return fuse.EINVAL
	}
	dh := v.(*dirHandle)
	dh.mu.Lock()
	defer dh.mu.Unlock()

	processed := 0
	for _, e := range dh.entries {
		if !out.AddDirEntry(fuse.DirEntry{Mode: e.Mode, Name: e.Name}) {
			break
		}
		processed++
	}
	dh.entries = dh.entries[processed:]
	return fuse.OK
}

func (fs *FileSystem) ReadDirPlus(input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	c := fs.newCtx(context.Background())
	v, ok := fs.dirHandles.Load(input.Fh)
	if !ok {
		return fuse.EINVAL
	}
	dh := v.(*dirHandle)
	dh.mu.Lock()
	defer dh.mu.Unlock()

	dir, st := fs.getDir(dh.inodeNum)
	if st != fuse.OK {
		return st
	}

	processed := 0
	for _, e := range dh.entries {
		details := out.AddDirLookupEntry(fuse.DirEntry{Mode: e.Mode, Name: e.Name})
		if details == nil {
			break
		}
		processed++

		child, err := dir.GetOrLoadChild(c, e.Name)
		if err != nil {
			continue
		}
		attr, err := child.GetAttr(c)
		if err != nil {
			continue
		}
		fs.imap.IncFuseRefcount(child.InodeNum())
		fs.fillEntryOut(details, child.InodeNum(), attr)
	}
	dh.entries = dh.entries[processed:]
	return fuse.OK
}

func (fs *FileSystem) Init(server *fuse.Server) {
	fs.SetServer(server)
}
