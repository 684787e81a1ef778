package auth

import (
	"os"
	"sort"
)

func sortUsersByID(users []*User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

// readFileOrEmpty returns the file's contents, or nil with no error if
// the file does not yet exist (a fresh installation's first Load).
func readFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
