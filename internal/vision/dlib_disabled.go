//go:build !dlib

package vision

import "errors"

func newDlibProvider(modelsDir string, descriptorLen int) (Provider, error) {
	return nil, errors.New("dlib provider not compiled in; rebuild with -tags dlib")
}
