package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

const (
	gmailHost = "imap.gmail.com"
	gmailPort = 993

	connectTimeout = 30 * time.Second
	ioTimeout      = 30 * time.Second
)

// deadlineConn arms a fresh deadline before every read and write, so a server
// that accepts the dial but then stalls cannot hang a command forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// Provider implements out.EmailProvider over IMAP with either plain
// credentials or Gmail OAuth. Each operation opens its own connection and
// closes it before returning.
type Provider struct {
	cfg    domain.EmailConfig
	tokens out.TokenSource
	log    *logger.Logger
}

// NewProvider builds a provider for one user's mailbox. tokens is required
// for the gmail provider and ignored otherwise.
func NewProvider(cfg domain.EmailConfig, tokens out.TokenSource) *Provider {
	user := cfg.User
	if user == "" {
		user = cfg.OAuthEmail
	}
	cfg.User = user
	return &Provider{
		cfg:    cfg,
		tokens: tokens,
		log:    logger.Default().WithField("component", "imap").WithField("provider", cfg.Provider),
	}
}

func (p *Provider) addr() string {
	host, port := p.cfg.Host, p.cfg.Port
	if p.cfg.Provider == "gmail" {
		host, port = gmailHost, gmailPort
	}
	if port == 0 {
		port = 993
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// connect dials, performs the TLS handshake and authenticates.
func (p *Provider) connect(ctx context.Context) (*imapclient.Client, error) {
	dialer := &net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return nil, apperr.ExternalError("imap", err)
	}
	host, _, _ := net.SplitHostPort(p.addr())
	tlsConn := tls.Client(&deadlineConn{Conn: conn, timeout: ioTimeout}, &tls.Config{ServerName: host})
	client := imapclient.New(tlsConn, nil)

	if p.cfg.Provider == "gmail" {
		token, err := p.tokens.AccessToken(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: p.cfg.User,
			Token:    token,
		})
		if err := client.Authenticate(auth); err != nil {
			client.Close()
			return nil, apperr.Unauthorized(fmt.Sprintf("imap oauth authentication failed: %v", err))
		}
	} else {
		if err := client.Login(p.cfg.User, p.cfg.Password).Wait(); err != nil {
			client.Close()
			return nil, apperr.Unauthorized(fmt.Sprintf("imap login failed: %v", err))
		}
	}
	return client, nil
}

// FetchUnseen returns decoded messages from folder that lack the \Seen flag.
// A folder that does not exist yields an empty list.
func (p *Provider) FetchUnseen(ctx context.Context, folder string) ([]out.EmailItem, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer client.Logout()

	selected, err := client.Select(folder, nil).Wait()
	if err != nil {
		p.log.WithField("folder", folder).Info("folder not selectable, treating as empty")
		return nil, nil
	}
	if selected.NumMessages == 0 {
		return nil, nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, 0) // 1:*
	section := &imap.FetchItemBodySection{}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	msgs, err := client.Fetch(seqSet, fetchOpts).Collect()
	if err != nil {
		return nil, apperr.ExternalError("imap", err)
	}

	items := make([]out.EmailItem, 0, len(msgs))
	for _, msg := range msgs {
		if slices.Contains(msg.Flags, imap.FlagSeen) {
			continue
		}
		if msg.Envelope == nil {
			continue
		}
		raw := string(msg.FindBodySection(section))
		item := out.EmailItem{
			Subject:      msg.Envelope.Subject,
			Body:         parseBody(raw),
			ReceivedDate: msg.Envelope.Date,
			MessageID:    msg.Envelope.MessageID,
			UID:          uint32(msg.UID),
			Folder:       folder,
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			item.From = from.Addr()
			item.FromName = from.Name
		}
		if p.cfg.Provider == "gmail" {
			item.GmailMessageID = msg.Envelope.MessageID
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkAsRead adds the \Seen flag to the given UIDs.
func (p *Provider) MarkAsRead(ctx context.Context, folder string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	client, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	defer client.Logout()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return apperr.ExternalError("imap", err)
	}
	uidSet := toUIDSet(uids)
	store := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := client.Store(uidSet, store, nil).Close(); err != nil {
		return apperr.ExternalError("imap", err)
	}
	return nil
}

// MoveToProcessed moves UIDs into processedFolder, creating it on first use.
// Each UID is moved individually so one poisoned message cannot sink the
// whole batch.
func (p *Provider) MoveToProcessed(ctx context.Context, folder, processedFolder string, uids []uint32) (*out.MoveResult, error) {
	result := &out.MoveResult{}
	if len(uids) == 0 {
		return result, nil
	}
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer client.Logout()

	// Create is a no-op failure when the folder already exists.
	if err := client.Create(processedFolder, nil).Wait(); err != nil {
		p.log.WithField("folder", processedFolder).Debug("processed folder create: %v", err)
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, apperr.ExternalError("imap", err)
	}

	for _, uid := range uids {
		uidSet := toUIDSet([]uint32{uid})
		if _, err := client.Move(uidSet, processedFolder).Wait(); err != nil {
			p.log.WithError(err).WithField("uid", uid).Warn("failed to move message")
			result.Failed = append(result.Failed, uid)
			continue
		}
		result.Moved = append(result.Moved, uid)
	}
	return result, nil
}

func toUIDSet(uids []uint32) imap.UIDSet {
	var set imap.UIDSet
	for _, uid := range uids {
		set.AddNum(imap.UID(uid))
	}
	return set
}

var _ out.EmailProvider = (*Provider)(nil)
