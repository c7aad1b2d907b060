package blockdev

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/xattr"
	"github.com/sirupsen/logrus"
	times "gopkg.in/djherbis/times.v1"
)

// volumeXattr is the extended attribute name used to tag a container file
// with its volume ID, so the ID can be read without opening and mmap'ing
// the file. This is a pure diagnostic convenience: the filesystem layer
// never reads or depends on it.
const volumeXattr = "user.simplefs.volume"

// ContainerInfo describes a container as a host file, independent of
// anything stored inside the volume itself. This is explicitly not the
// per-entity timestamp tracking that the filesystem layer excludes: it
// describes the container artifact on the host, the way `stat` would.
type ContainerInfo struct {
	Size       int64
	ModTime    time.Time
	AccessTime time.Time
	VolumeID   uuid.UUID // zero value if the xattr tag is missing or unreadable
}

// Info stats filename and, where the host filesystem supports extended
// attributes, reads back the volume tag written at format time.
func Info(filename string) (ContainerInfo, error) {
	stat, err := os.Stat(filename)
	if err != nil {
		return ContainerInfo{}, err
	}
	t, err := times.Stat(filename)
	if err != nil {
		return ContainerInfo{}, err
	}

	info := ContainerInfo{
		Size:       stat.Size(),
		ModTime:    t.ModTime(),
		AccessTime: t.AccessTime(),
	}

	if raw, err := xattr.Get(filename, volumeXattr); err == nil {
		if id, err := uuid.FromBytes(raw); err == nil {
			info.VolumeID = id
		}
	}

	return info, nil
}

// tagContainer best-effort writes the volume xattr at format time. Hosts
// that don't support xattrs (some container filesystems, most notably)
// simply don't get the tag; this never fails Open.
func tagContainer(filename string, id uuid.UUID) {
	raw, err := id.MarshalBinary()
	if err != nil {
		return
	}
	if err := xattr.Set(filename, volumeXattr, raw); err != nil {
		log.WithFields(logrus.Fields{"file": filename}).Debugf("could not tag container with volume xattr: %v", err)
	}
}
