package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/ashkog/dirgate"
	"github.com/go-ldap/ldap/v3"
)

// userAccountControl bits.
const (
	uacNormalAccount  = 0x200
	uacAccountDisable = 0x2
)

// Config defines a public type used by dirgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// URL is the directory endpoint, ldap:// or ldaps://.
	URL string
	// BindDN and BindPassword identify the service account used for
	// lookups and write-through operations. User credential checks never
	// use this account; they bind as the user.
	BindDN       string
	BindPassword string
	// BaseDN is the subtree searched for user entries.
	BaseDN string
	// AdminGroupDN is the group whose members count as administrators.
	AdminGroupDN string
	// TLSConfig applies to ldaps:// connections.
	TLSConfig *tls.Config
	// Timeout bounds each directory round-trip. Zero means 10 seconds.
	Timeout time.Duration
}

// Client is the LDAP/AD implementation of [dirgate.DirectoryClient]. Each
// operation dials a fresh connection, so a Client carries no mutable state
// and is safe for concurrent use.
type Client struct {
	config Config
}

// NewClient describes the newclient operation and its observable behavior.
//
// NewClient may return an error when input validation, dependency calls, or security checks fail.
// NewClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("directory URL required")
	}
	if cfg.BindDN == "" || cfg.BindPassword == "" {
		return nil, errors.New("service bind credentials required")
	}
	if cfg.BaseDN == "" {
		return nil, errors.New("base DN required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{config: cfg}, nil
}

var _ dirgate.DirectoryClient = (*Client)(nil)

// dial opens a connection and binds with the given credentials. Bind
// failures map to [dirgate.ErrInvalidCredentials]; everything else counts
// as the directory being unreachable.
func (c *Client) dial(ctx context.Context, bindDN, password string) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}

	opts := []ldap.DialOpt{}
	if c.config.TLSConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(c.config.TLSConfig))
	}
	conn, err := ldap.DialURL(c.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	conn.SetTimeout(c.config.Timeout)

	if err := conn.Bind(bindDN, password); err != nil {
		conn.Close()
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, dirgate.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return conn, nil
}

func (c *Client) serviceConn(ctx context.Context) (*ldap.Conn, error) {
	conn, err := c.dial(ctx, c.config.BindDN, c.config.BindPassword)
	if err != nil {
		// A rejected service bind is an operator problem, not a user
		// credential failure.
		if errors.Is(err, dirgate.ErrInvalidCredentials) {
			return nil, fmt.Errorf("%w: service bind rejected", dirgate.ErrDirectoryUnavailable)
		}
		return nil, err
	}
	return conn, nil
}

// Lookup resolves a username to its directory entry with a service-account
// search. Unknown usernames map to [dirgate.ErrInvalidCredentials] so
// callers cannot distinguish them from a wrong password.
func (c *Client) Lookup(ctx context.Context, username string) (*dirgate.DirectoryEntry, error) {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return c.findUser(conn, username)
}

func (c *Client) findUser(conn *ldap.Conn, username string) (*dirgate.DirectoryEntry, error) {
	filter := fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, 0, false,
		filter,
		[]string{"sAMAccountName", "displayName", "mail", "memberOf", "userAccountControl"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	if len(res.Entries) == 0 {
		return nil, dirgate.ErrInvalidCredentials
	}

	entry := res.Entries[0]
	uac, _ := strconv.Atoi(entry.GetAttributeValue("userAccountControl"))

	return &dirgate.DirectoryEntry{
		DN:          entry.DN,
		Username:    entry.GetAttributeValue("sAMAccountName"),
		DisplayName: entry.GetAttributeValue("displayName"),
		Mail:        entry.GetAttributeValue("mail"),
		Groups:      entry.GetAttributeValues("memberOf"),
		Enabled:     uac&uacAccountDisable == 0,
	}, nil
}

// Bind authenticates the user with their own credentials: the username is
// resolved to a DN with the service account, then a bind as that DN proves
// the password.
func (c *Client) Bind(ctx context.Context, username, password string) (*dirgate.DirectoryEntry, error) {
	if password == "" {
		// LDAP treats an empty password as an anonymous bind, which
		// succeeds. Refuse before dialing.
		return nil, dirgate.ErrInvalidCredentials
	}

	entry, err := c.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	userConn, err := c.dial(ctx, entry.DN, password)
	if err != nil {
		return nil, err
	}
	userConn.Close()
	return entry, nil
}

// IsAdmin reports membership in the configured administrators group by
// querying the group entry directly.
func (c *Client) IsAdmin(ctx context.Context, username string) (bool, error) {
	if c.config.AdminGroupDN == "" {
		return false, nil
	}

	conn, err := c.serviceConn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	entry, err := c.findUser(conn, username)
	if err != nil {
		if errors.Is(err, dirgate.ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}

	filter := fmt.Sprintf("(member=%s)", ldap.EscapeFilter(entry.DN))
	req := ldap.NewSearchRequest(
		c.config.AdminGroupDN,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		filter,
		[]string{"member"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return len(res.Entries) > 0, nil
}

// SetPassword replaces the account password via the unicodePwd attribute,
// which Active Directory requires as a UTF-16LE encoded quoted string.
func (c *Client) SetPassword(ctx context.Context, dn, newPassword string) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ldap.NewModifyRequest(dn, nil)
	req.Replace("unicodePwd", []string{string(encodeUnicodePwd(newPassword))})
	if err := conn.Modify(req); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// SetEnabled flips the ACCOUNTDISABLE bit in userAccountControl, keeping
// every other flag on the entry intact.
func (c *Client) SetEnabled(ctx context.Context, dn string, enabled bool) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"userAccountControl"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}

	uac := uacNormalAccount
	if len(res.Entries) > 0 {
		if parsed, err := strconv.Atoi(res.Entries[0].GetAttributeValue("userAccountControl")); err == nil && parsed != 0 {
			uac = parsed
		}
	}
	if enabled {
		uac &^= uacAccountDisable
	} else {
		uac |= uacAccountDisable
	}

	mod := ldap.NewModifyRequest(dn, nil)
	mod.Replace("userAccountControl", []string{strconv.Itoa(uac)})
	if err := conn.Modify(mod); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// CreateUser adds the account entry, writes its initial password, and then
// enables it. Active Directory refuses a password on the add itself, so the
// three writes have to happen in that order.
func (c *Client) CreateUser(ctx context.Context, user dirgate.NewUser) error {
	if user.Username == "" || user.DisplayName == "" || user.OUDN == "" || user.Password == "" {
		return errors.New("username, display name, OU and password required")
	}

	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	dn := fmt.Sprintf("CN=%s,%s", user.DisplayName, user.OUDN)
	add := ldap.NewAddRequest(dn, nil)
	add.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "user"})
	add.Attribute("sAMAccountName", []string{user.Username})
	add.Attribute("displayName", []string{user.DisplayName})
	add.Attribute("userPrincipalName", []string{user.Username + "@" + c.domainFromBaseDN()})
	if user.Mail != "" {
		add.Attribute("mail", []string{user.Mail})
	}
	if err := conn.Add(add); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}

	mod := ldap.NewModifyRequest(dn, nil)
	mod.Replace("unicodePwd", []string{string(encodeUnicodePwd(user.Password))})
	if err := conn.Modify(mod); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}

	return c.SetEnabled(ctx, dn, true)
}

// UpdateUser replaces the given attributes on the entry.
func (c *Client) UpdateUser(ctx context.Context, dn string, changes map[string]string) error {
	if len(changes) == 0 {
		return nil
	}

	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	mod := ldap.NewModifyRequest(dn, nil)
	for attr, value := range changes {
		mod.Replace(attr, []string{value})
	}
	if err := conn.Modify(mod); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// DeleteUser removes the entry.
func (c *Client) DeleteUser(ctx context.Context, dn string) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// MoveUser relocates the entry under targetOUDN, keeping its relative name.
func (c *Client) MoveUser(ctx context.Context, dn, targetOUDN string) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	rdn := strings.SplitN(dn, ",", 2)[0]
	req := ldap.NewModifyDNRequest(dn, rdn, true, targetOUDN)
	if err := conn.ModifyDN(req); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// CreateOU creates an organizational unit under parentDN.
func (c *Client) CreateOU(ctx context.Context, name, parentDN, description string) error {
	if name == "" || parentDN == "" {
		return errors.New("OU name and parent DN required")
	}

	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	add := ldap.NewAddRequest(fmt.Sprintf("OU=%s,%s", name, parentDN), nil)
	add.Attribute("objectClass", []string{"top", "organizationalUnit"})
	add.Attribute("ou", []string{name})
	if description != "" {
		add.Attribute("description", []string{description})
	}
	if err := conn.Add(add); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// UpdateOU renames the OU when name is non-empty and replaces its
// description when description is non-empty.
func (c *Client) UpdateOU(ctx context.Context, dn, name, description string) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if name != "" {
		req := ldap.NewModifyDNRequest(dn, "OU="+name, true, "")
		if err := conn.ModifyDN(req); err != nil {
			return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
		}
		if parts := strings.SplitN(dn, ",", 2); len(parts) == 2 {
			dn = "OU=" + name + "," + parts[1]
		}
	}

	if description != "" {
		mod := ldap.NewModifyRequest(dn, nil)
		mod.Replace("description", []string{description})
		if err := conn.Modify(mod); err != nil {
			return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
		}
	}
	return nil
}

// DeleteOU removes the organizational unit.
func (c *Client) DeleteOU(ctx context.Context, dn string) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return fmt.Errorf("%w: %v", dirgate.ErrDirectoryUnavailable, err)
	}
	return nil
}

// Ping verifies reachability with a service bind.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.serviceConn(ctx)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// domainFromBaseDN derives the UPN suffix from the DC components of the
// base DN, e.g. DC=corp,DC=example,DC=org becomes corp.example.org.
func (c *Client) domainFromBaseDN() string {
	var parts []string
	for _, rdn := range strings.Split(c.config.BaseDN, ",") {
		rdn = strings.TrimSpace(rdn)
		if len(rdn) > 3 && strings.EqualFold(rdn[:3], "DC=") {
			parts = append(parts, rdn[3:])
		}
	}
	return strings.Join(parts, ".")
}

func encodeUnicodePwd(password string) []byte {
	quoted := `"` + password + `"`
	units := utf16.Encode([]rune(quoted))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}
