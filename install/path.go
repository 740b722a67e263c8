package install

import (
	"os/user"
	"path/filepath"
	"strconv"
)

// resolvePath joins cwd and data unless data is already absolute,
// mirroring the C original's repeated "if (e->data[0] == '/') ...
// else snprintf(%s%s/%s, root, cwd, data)" pattern.
func resolvePath(cwd, data string) string {
	if data == "" {
		return cwd
	}
	if filepath.IsAbs(data) {
		return data
	}
	return filepath.Join(cwd, data)
}

// lookupOwner resolves a user/group name to numeric IDs. Empty names
// resolve to -1 (os.Chown's "leave unchanged" sentinel).
func lookupOwner(owner, group string) (int, int, error) {
	uid, gid := -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return 0, 0, err
		}
		n, err := strconv.Atoi(u.Uid)
		if err != nil {
			return 0, 0, err
		}
		uid = n
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, err
		}
		n, err := strconv.Atoi(g.Gid)
		if err != nil {
			return 0, 0, err
		}
		gid = n
	}
	return uid, gid, nil
}
