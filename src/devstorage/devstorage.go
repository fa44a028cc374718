package devstorage

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.listhouse.net/lhn/lhn/src/listhouse"
	"github.com/spf13/cobra"
)

func init() {
	var addr string

	storageCommand := &cobra.Command{
		Use:   "devstorage [storage folder]",
		Short: "Run a local blob server that stores in the filesystem",
		Run: func(cmd *cobra.Command, args []string) {
			targetFolder := "./tmp"
			if len(args) > 0 {
				targetFolder = args[0]
			}
			srv, err := newServer(targetFolder)
			if err != nil {
				panic(err)
			}
			log.Fatal(http.ListenAndServe(addr, srv))
		},
	}
	storageCommand.Flags().StringVar(&addr, "addr", ":9003", "Address to listen on")

	listhouse.ListhouseCommand.AddCommand(storageCommand)
}

// A local stand-in for the blob store in development. It speaks just enough
// S3 for the archive's own client: object put/get/head, copy-source puts
// with replaced metadata, and bucket listing. Metadata lives in a sidecar
// file next to each bucket folder.
type server struct {
	root string
}

func newServer(root string) (*server, error) {
	err := os.MkdirAll(root, fs.ModePerm)
	if err != nil {
		return nil, err
	}
	return &server{root: root}, nil
}

type objectMeta struct {
	ContentType string            `json:"content_type"`
	Meta        map[string]string `json:"meta"`
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key := bucketKey(r)
	log.Printf("%s /%s/%s", r.Method, bucket, key)

	switch r.Method {
	case http.MethodPut:
		if src := r.Header.Get("X-Amz-Copy-Source"); src != "" {
			s.copyObject(w, r, bucket, key, src)
			return
		}
		s.putObject(w, r, bucket, key)
	case http.MethodGet:
		if key == "" {
			s.listBucket(w, bucket)
			return
		}
		s.getObject(w, r, bucket, key)
	case http.MethodHead:
		s.headObject(w, bucket, key)
	default:
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}

func (s *server) putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/%s", bucket))
	err = os.MkdirAll(s.bucketPath(bucket), fs.ModePerm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if key != "" {
		err = os.WriteFile(s.objectPath(bucket, key), body, fs.ModePerm)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// A copy-source put carries no body; writing the body over the object is
// how attachments get zeroed. The source object's bytes are copied, and the
// request's x-amz-meta-* headers become the new metadata when the directive
// says REPLACE.
func (s *server) copyObject(w http.ResponseWriter, r *http.Request, bucket, key, src string) {
	srcBucket, srcKey, err := splitCopySource(src)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	content, err := os.ReadFile(s.objectPath(srcBucket, srcKey))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	err = os.MkdirAll(s.bucketPath(bucket), fs.ModePerm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	err = os.WriteFile(s.objectPath(bucket, key), content, fs.ModePerm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	meta := s.loadMeta(srcBucket, srcKey)
	if strings.EqualFold(r.Header.Get("X-Amz-Metadata-Directive"), "REPLACE") {
		meta = objectMeta{
			ContentType: r.Header.Get("Content-Type"),
			Meta:        make(map[string]string),
		}
		for name, values := range r.Header {
			lower := strings.ToLower(name)
			if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
				meta.Meta[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
			}
		}
	}
	err = s.saveMeta(bucket, key, meta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w,
		`<?xml version="1.0" encoding="UTF-8"?><CopyObjectResult><LastModified>%s</LastModified><ETag>&quot;%s&quot;</ETag></CopyObjectResult>`,
		time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		key,
	)
}

func (s *server) getObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	content, err := os.ReadFile(s.objectPath(bucket, key))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.writeMetaHeaders(w, bucket, key)
	w.Write(content)
}

func (s *server) headObject(w http.ResponseWriter, bucket, key string) {
	info, err := os.Stat(s.objectPath(bucket, key))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeMetaHeaders(w, bucket, key)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
}

func (s *server) listBucket(w http.ResponseWriter, bucket string) {
	// A missing bucket lists as empty; the sweep runs fine against a store
	// nothing was ever archived to.
	entries, _ := os.ReadDir(s.bucketPath(bucket))

	var contents strings.Builder
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fmt.Fprintf(&contents, "<Contents><Key>%s</Key></Contents>", entry.Name())
		count++
	}

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w,
		`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>%s</Name><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>%s</ListBucketResult>`,
		bucket, count, contents.String(),
	)
}

func (s *server) bucketPath(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *server) objectPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, key)
}

func (s *server) metaPath(bucket, key string) string {
	return filepath.Join(s.root, bucket+".meta", key)
}

func (s *server) loadMeta(bucket, key string) objectMeta {
	var meta objectMeta
	data, err := os.ReadFile(s.metaPath(bucket, key))
	if err == nil {
		json.Unmarshal(data, &meta)
	}
	return meta
}

func (s *server) saveMeta(bucket, key string, meta objectMeta) error {
	err := os.MkdirAll(filepath.Join(s.root, bucket+".meta"), fs.ModePerm)
	if err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(bucket, key), data, fs.ModePerm)
}

func (s *server) writeMetaHeaders(w http.ResponseWriter, bucket, key string) {
	meta := s.loadMeta(bucket, key)
	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	for name, value := range meta.Meta {
		w.Header().Set("x-amz-meta-"+name, value)
	}
}

func splitCopySource(src string) (bucket string, key string, err error) {
	unescaped, err := url.PathUnescape(src)
	if err != nil {
		return "", "", fmt.Errorf("bad copy source %q: %w", src, err)
	}
	unescaped = strings.TrimPrefix(unescaped, "/")
	bucket, key, ok := strings.Cut(unescaped, "/")
	if !ok {
		return "", "", fmt.Errorf("copy source %q names no object", src)
	}
	return bucket, strings.Replace(key, "/", "~", -1), nil
}

func bucketKey(r *http.Request) (string, string) {
	slashIdx := strings.IndexByte(r.URL.Path[1:], '/')
	if slashIdx == -1 {
		return r.URL.Path[1:], ""
	} else {
		return r.URL.Path[1 : 1+slashIdx], strings.Replace(r.URL.Path[2+slashIdx:], "/", "~", -1)
	}
}
