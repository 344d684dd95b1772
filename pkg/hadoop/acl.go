package hadoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

const webhdfsPrefix = "/webhdfs/v1"

// ACLClient applies group ACL entries to HDFS paths through WebHDFS.
type ACLClient struct {
	baseURL   *url.URL
	user      string
	recursive bool
	http      *http.Client
	logger    *slog.Logger
}

// ACLOption configures an ACLClient.
type ACLOption func(*ACLClient)

// WithBaseURL overrides the namenode HTTP address derived from the
// configuration, e.g. "http://namenode:9870".
func WithBaseURL(u *url.URL) ACLOption {
	return func(c *ACLClient) { c.baseURL = u }
}

// WithUser sets the user.name sent with every request.
func WithUser(user string) ACLOption {
	return func(c *ACLClient) { c.user = user }
}

// WithRecursive applies the entries to every directory and file below each
// path as well.
func WithRecursive(recursive bool) ACLOption {
	return func(c *ACLClient) { c.recursive = recursive }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ACLOption {
	return func(c *ACLClient) { c.http = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ACLOption {
	return func(c *ACLClient) { c.logger = l }
}

// NewACLClient builds a client for the namenode described by conf.
// The namenode address is taken from dfs.namenode.http-address (or the https
// address when dfs.http.policy is HTTPS_ONLY) unless WithBaseURL is given.
// The user defaults to hadoop.user.name, then $HADOOP_USER_NAME.
func NewACLClient(conf *Configuration, opts ...ACLOption) (*ACLClient, error) {
	c := &ACLClient{
		user:   conf.GetDefault(KeyUserName, os.Getenv("HADOOP_USER_NAME")),
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == nil {
		u, err := namenodeURL(conf)
		if err != nil {
			return nil, err
		}
		c.baseURL = u
	}
	return c, nil
}

func namenodeURL(conf *Configuration) (*url.URL, error) {
	scheme, addr := "http", conf.Get(KeyNamenodeHTTPAddress)
	if strings.EqualFold(conf.Get(KeyHTTPPolicy), "HTTPS_ONLY") {
		scheme, addr = "https", conf.Get(KeyNamenodeHTTPSAddress)
	}
	if addr == "" {
		return nil, fmt.Errorf("namenode address not configured (%s)", KeyNamenodeHTTPAddress)
	}
	u, err := url.Parse(scheme + "://" + addr)
	if err != nil {
		return nil, fmt.Errorf("invalid namenode address %q: %w", addr, err)
	}
	return u, nil
}

// ParseAction converts a permission list such as "read,execute" into the
// POSIX ACL action string "r-x".
func ParseAction(permission string) (string, error) {
	action := []byte("---")
	for _, p := range strings.Split(permission, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "read":
			action[0] = 'r'
		case "write":
			action[1] = 'w'
		case "execute":
			action[2] = 'x'
		case "":
		default:
			return "", fmt.Errorf("unknown permission %q", p)
		}
	}
	return string(action), nil
}

// SplitList splits a comma-delimited list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SetACL grants permission to every group on every path. groups and paths are
// comma-delimited lists. Directories also receive matching default entries so
// new children inherit them.
func (c *ACLClient) SetACL(ctx context.Context, groups, paths, permission string) error {
	action, err := ParseAction(permission)
	if err != nil {
		return err
	}
	groupList := SplitList(groups)
	if len(groupList) == 0 {
		c.logger.Debug("no groups to grant, skipping acl", "paths", paths)
		return nil
	}

	for _, p := range SplitList(paths) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("hdfs path %q is not absolute", p)
		}
		if err := c.applyPath(ctx, p, groupList, action); err != nil {
			return err
		}
	}
	return nil
}

func (c *ACLClient) applyPath(ctx context.Context, p string, groups []string, action string) error {
	status, err := c.fileStatus(ctx, p)
	if err != nil {
		return err
	}
	dir := status.Type == "DIRECTORY"

	if err := c.modifyACLEntries(ctx, p, aclSpec(groups, action, dir)); err != nil {
		return err
	}
	c.logger.Debug("applied hdfs acl", "path", p, "groups", groups, "action", action)

	if !dir || !c.recursive {
		return nil
	}
	children, err := c.listStatus(ctx, p)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := c.applyPath(ctx, path.Join(p, child.PathSuffix), groups, action); err != nil {
			return err
		}
	}
	return nil
}

func aclSpec(groups []string, action string, dir bool) string {
	entries := make([]string, 0, 2*len(groups))
	for _, g := range groups {
		entries = append(entries, "group:"+g+":"+action)
	}
	if dir {
		for _, g := range groups {
			entries = append(entries, "default:group:"+g+":"+action)
		}
	}
	return strings.Join(entries, ",")
}

type fileStatus struct {
	PathSuffix string `json:"pathSuffix"`
	Type       string `json:"type"`
}

// remoteError is the WebHDFS error envelope.
type remoteError struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

func (c *ACLClient) fileStatus(ctx context.Context, p string) (*fileStatus, error) {
	var out struct {
		FileStatus fileStatus `json:"FileStatus"`
	}
	if err := c.do(ctx, http.MethodGet, p, url.Values{"op": {"GETFILESTATUS"}}, &out); err != nil {
		return nil, err
	}
	return &out.FileStatus, nil
}

func (c *ACLClient) listStatus(ctx context.Context, p string) ([]fileStatus, error) {
	var out struct {
		FileStatuses struct {
			FileStatus []fileStatus `json:"FileStatus"`
		} `json:"FileStatuses"`
	}
	if err := c.do(ctx, http.MethodGet, p, url.Values{"op": {"LISTSTATUS"}}, &out); err != nil {
		return nil, err
	}
	return out.FileStatuses.FileStatus, nil
}

func (c *ACLClient) modifyACLEntries(ctx context.Context, p, spec string) error {
	q := url.Values{"op": {"MODIFYACLENTRIES"}, "aclspec": {spec}}
	return c.do(ctx, http.MethodPut, p, q, nil)
}

func (c *ACLClient) do(ctx context.Context, method, p string, q url.Values, v any) error {
	if c.user != "" {
		q.Set("user.name", c.user)
	}
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + webhdfsPrefix + p
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(fmt.Errorf("webhdfs %s %s: %w", q.Get("op"), p, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("webhdfs %s %s: %s", q.Get("op"), p, remoteMessage(resp.StatusCode, body))
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
			return unavailable(err)
		}
		return err
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("webhdfs %s %s: decode error: %w", q.Get("op"), p, err)
	}
	return nil
}

func remoteMessage(status int, body []byte) string {
	var re remoteError
	if err := json.Unmarshal(body, &re); err == nil && re.RemoteException.Exception != "" {
		return fmt.Sprintf("%d %s: %s", status, re.RemoteException.Exception, re.RemoteException.Message)
	}
	return fmt.Sprintf("%d %s", status, strings.TrimSpace(string(body)))
}

// unavailable marks transport failures and gateway errors so callers can tell
// them from rejected requests.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", authz.ErrStoreUnavailable, err)
}
