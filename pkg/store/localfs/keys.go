package localfs

import "github.com/configplane/configplane/pkg/model"

const indexDb = "index"

var (
	branchPref   = [7]byte{'b', 'r', 'a', 'n', 'c', 'h', ':'}
	snapshotPref = [9]byte{'s', 'n', 'a', 'p', 's', 'h', 'o', 't', ':'}
)

func branchKey(name string) []byte {
	return append(branchPref[:], model.UnsafeStringToBytes(name)...)
}

func snapshotKey(id string) []byte {
	return append(snapshotPref[:], model.UnsafeStringToBytes(id)...)
}
