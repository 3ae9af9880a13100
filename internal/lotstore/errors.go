package lotstore

import "github.com/pelicanplatform/lotman-go/internal/lotkind"

func wrapStoreErr(msg string, cause error) error {
	return lotkind.Wrap(lotkind.StoreError, msg, cause)
}
