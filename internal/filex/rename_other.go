//go:build !linux

package filex

// RenameNoReplace moves oldpath to newpath and fails with an error matching
// fs.ErrExist when newpath is already taken. Outside Linux this is a
// check-then-rename and can race with a concurrent writer.
func RenameNoReplace(oldpath, newpath string) error {
	return renameChecked(oldpath, newpath)
}
