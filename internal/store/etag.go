package store

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// NextEtag вычисляет etag новой версии документа.
//
// Etag выводится из содержимого и предыдущего etag, поэтому меняется
// при каждой записи, даже если содержимое не изменилось.
func NextEtag(prev Etag, body []byte) Etag {
	h := xxhash.New()
	h.WriteString(string(prev))
	h.Write([]byte{0})
	h.Write(body)
	return Etag(`"` + strconv.FormatUint(h.Sum64(), 16) + `"`)
}
