package filex

import (
	"io/fs"
	"os"
)

func renameChecked(oldpath, newpath string) error {
	if Exists(newpath) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	}
	return os.Rename(oldpath, newpath)
}
