package auth

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
)

const (
	defaultLDAPPort    = 389
	defaultLDAPTimeout = 10 * time.Second
)

// Directory authenticates staff against an external user directory.
type Directory interface {
	// Authenticate verifies the credentials. A nil error means the user
	// bound successfully and passed the optional group check.
	Authenticate(ctx context.Context, st *models.Settings, username, password string) error
	// Exists reports whether the directory knows the username, using the
	// configured service account.
	Exists(ctx context.Context, st *models.Settings, username string) (bool, error)
	// TestConnection checks reachability and the service-account bind.
	TestConnection(ctx context.Context, st *models.Settings) error
}

// LDAPDirectory talks to an Active Directory / LDAP server.
type LDAPDirectory struct {
	timeout time.Duration
	logger  logger.Logger
}

func NewLDAPDirectory(log logger.Logger) *LDAPDirectory {
	return &LDAPDirectory{
		timeout: defaultLDAPTimeout,
		logger:  log.WithFields(map[string]interface{}{"component": "ldap"}),
	}
}

func (d *LDAPDirectory) connect(st *models.Settings) (*ldap.Conn, error) {
	port := st.ADPort
	if port == 0 {
		port = defaultLDAPPort
	}
	addr := fmt.Sprintf("ldap://%s:%d", st.ADServer, port)
	conn, err := ldap.DialURL(addr, ldap.DialWithDialer(&net.Dialer{Timeout: d.timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial directory %s: %w", addr, err)
	}
	conn.SetTimeout(d.timeout)
	return conn, nil
}

// bindName qualifies a bare username with the configured domain, the UPN
// form AD expects.
func bindName(st *models.Settings, username string) string {
	if st.ADDomain != "" && !strings.Contains(username, "@") {
		return username + "@" + st.ADDomain
	}
	return username
}

func (d *LDAPDirectory) Authenticate(ctx context.Context, st *models.Settings, username, password string) error {
	// An empty password would be an unauthenticated LDAP bind, which many
	// servers accept. Never let that count as a login.
	if password == "" {
		return fmt.Errorf("empty password")
	}

	conn, err := d.connect(st)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Bind(bindName(st, username), password); err != nil {
		return fmt.Errorf("directory bind for %q: %w", username, err)
	}

	if st.ADGroupFilter != "" && st.ADBaseDN != "" {
		ok, err := d.matchesFilter(conn, st, username)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %q not in the allowed group", username)
		}
	}
	return nil
}

func (d *LDAPDirectory) Exists(ctx context.Context, st *models.Settings, username string) (bool, error) {
	conn, err := d.connect(st)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := d.serviceBind(conn, st); err != nil {
		return false, err
	}
	return d.searchUser(conn, st, username)
}

func (d *LDAPDirectory) TestConnection(ctx context.Context, st *models.Settings) error {
	conn, err := d.connect(st)
	if err != nil {
		return err
	}
	defer conn.Close()
	return d.serviceBind(conn, st)
}

func (d *LDAPDirectory) serviceBind(conn *ldap.Conn, st *models.Settings) error {
	if st.ADBindUser == "" {
		if err := conn.UnauthenticatedBind(""); err != nil {
			return fmt.Errorf("anonymous bind: %w", err)
		}
		return nil
	}
	if err := conn.Bind(bindName(st, st.ADBindUser), st.ADBindPassword); err != nil {
		return fmt.Errorf("service account bind: %w", err)
	}
	return nil
}

func (d *LDAPDirectory) matchesFilter(conn *ldap.Conn, st *models.Settings, username string) (bool, error) {
	filter := fmt.Sprintf("(&(sAMAccountName=%s)%s)", ldap.EscapeFilter(username), st.ADGroupFilter)
	return d.search(conn, st, filter)
}

func (d *LDAPDirectory) searchUser(conn *ldap.Conn, st *models.Settings, username string) (bool, error) {
	filter := fmt.Sprintf("(|(sAMAccountName=%[1]s)(userPrincipalName=%[1]s))", ldap.EscapeFilter(username))
	return d.search(conn, st, filter)
}

func (d *LDAPDirectory) search(conn *ldap.Conn, st *models.Settings, filter string) (bool, error) {
	req := ldap.NewSearchRequest(
		st.ADBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, int(d.timeout.Seconds()), false,
		filter,
		[]string{"dn"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return false, fmt.Errorf("directory search: %w", err)
	}
	return len(res.Entries) > 0, nil
}
