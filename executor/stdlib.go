package executor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// stdlibMarker identifies the standard-library root inside an archive.
const stdlibMarker = "os.py"

var zipMagic = []byte("PK\x03\x04")

// openStdlib opens a zip or tar standard-library archive and returns the
// tree rooted at the directory that holds os.py. Release tarballs carry the
// library under a prefix such as usr/local/lib/python3.12/.
func openStdlib(data []byte) (fs.FS, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		var err error
		if data, err = tarToZip(data); err != nil {
			return nil, err
		}
	}
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	names := make([]string, 0, len(archive.File))
	for _, f := range archive.File {
		names = append(names, f.Name)
	}
	root, ok := stdlibRoot(names)
	if !ok {
		return nil, fmt.Errorf("no %s in archive", stdlibMarker)
	}
	if root == "." {
		return archive, nil
	}
	return fs.Sub(archive, root)
}

// stdlibRoot returns the shallowest directory containing the marker file.
func stdlibRoot(names []string) (string, bool) {
	root, depth := "", -1
	for _, name := range names {
		name = strings.TrimPrefix(name, "./")
		if path.Base(name) != stdlibMarker {
			continue
		}
		if d := strings.Count(name, "/"); depth == -1 || d < depth {
			root, depth = path.Dir(name), d
		}
	}
	return root, depth >= 0
}

// tarToZip repacks the regular files of a tar archive into an uncompressed
// zip so both formats are served through archive/zip.
func tarToZip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	tr := tar.NewReader(bytes.NewReader(data))
	files := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   strings.TrimPrefix(hdr.Name, "./"),
			Method: zip.Store,
		})
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(w, tr); err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		files++
	}
	if files == 0 {
		return nil, errors.New("archive is neither zip nor tar")
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
