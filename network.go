package devsly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// RecordType is a DNS record type accepted by [Client.DNSLookup].
type RecordType string

const (
	RecordA     RecordType = "A"
	RecordAAAA  RecordType = "AAAA"
	RecordMX    RecordType = "MX"
	RecordNS    RecordType = "NS"
	RecordTXT   RecordType = "TXT"
	RecordCNAME RecordType = "CNAME"
	RecordSOA   RecordType = "SOA"
)

// ParseRecordType maps s to a [RecordType], ignoring case. An empty string
// is [RecordA].
func ParseRecordType(s string) (RecordType, error) {
	rt := RecordType(strings.ToUpper(strings.TrimSpace(s)))
	switch rt {
	case "":
		return RecordA, nil
	case RecordA, RecordAAAA, RecordMX, RecordNS, RecordTXT, RecordCNAME, RecordSOA:
		return rt, nil
	default:
		return "", fmt.Errorf("%w: unsupported DNS record type %q", ErrInvalidArgument, s)
	}
}

// WhoisInfo is the registration record of a domain.
type WhoisInfo struct {
	Success        bool            `json:"success"`
	Domain         string          `json:"domain"`
	Registrar      string          `json:"registrar,omitempty"`
	CreationDate   string          `json:"creation_date,omitempty"`
	ExpirationDate string          `json:"expiration_date,omitempty"`
	NameServers    []string        `json:"name_servers,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the modelled fields and keeps the raw payload.
func (w *WhoisInfo) UnmarshalJSON(data []byte) error {
	type plain WhoisInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*w = WhoisInfo(p)
	w.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// DNSRecord is one answer from a DNS lookup. Simple records such as A or TXT
// are JSON strings; MX and SOA records are objects.
type DNSRecord json.RawMessage

// UnmarshalJSON stores the record verbatim.
func (r *DNSRecord) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// MarshalJSON writes the record verbatim.
func (r DNSRecord) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// String returns string records unquoted and object records as compact JSON.
func (r DNSRecord) String() string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r); err != nil {
		return string(r)
	}
	return buf.String()
}

// Decode unmarshals an object record such as MX into v.
func (r DNSRecord) Decode(v any) error {
	return json.Unmarshal(r, v)
}

// DNSResult is the answer to a DNS lookup.
type DNSResult struct {
	Success bool        `json:"success"`
	Domain  string      `json:"domain"`
	Type    RecordType  `json:"type"`
	Records []DNSRecord `json:"records"`
}

// IPInfo is geolocation and network ownership for an IP address.
type IPInfo struct {
	IP        string          `json:"ip"`
	Country   string          `json:"country,omitempty"`
	Region    string          `json:"region,omitempty"`
	City      string          `json:"city,omitempty"`
	ISP       string          `json:"isp,omitempty"`
	Org       string          `json:"org,omitempty"`
	Timezone  string          `json:"timezone,omitempty"`
	Latitude  *float64        `json:"latitude,omitempty"`
	Longitude *float64        `json:"longitude,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the modelled fields and keeps the raw payload.
func (i *IPInfo) UnmarshalJSON(data []byte) error {
	type plain IPInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = IPInfo(p)
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Whois looks up the registration record of domain.
func (c *Client) Whois(ctx context.Context, domain string) (*WhoisInfo, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidArgument)
	}

	var info WhoisInfo
	if err := c.get(ctx, "/network/whois", url.Values{"domain": {domain}}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DNSLookup resolves records of the given type for domain.
// An empty record type means [RecordA].
func (c *Client) DNSLookup(ctx context.Context, domain string, recordType RecordType) (*DNSResult, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidArgument)
	}
	rt, err := ParseRecordType(string(recordType))
	if err != nil {
		return nil, err
	}

	var result DNSResult
	query := url.Values{"domain": {domain}, "type": {string(rt)}}
	if err := c.get(ctx, "/network/dns-lookup", query, &result); err != nil {
		return nil, err
	}
	if result.Type == "" {
		result.Type = rt
	}
	return &result, nil
}

// IPInfo returns details about ip. An empty ip reports on the caller's own
// public address.
func (c *Client) IPInfo(ctx context.Context, ip string) (*IPInfo, error) {
	ip = strings.TrimSpace(ip)
	var query url.Values
	if ip != "" {
		if net.ParseIP(ip) == nil {
			return nil, fmt.Errorf("%w: invalid IP address %q", ErrInvalidArgument, ip)
		}
		query = url.Values{"ip": {ip}}
	}

	var info IPInfo
	if err := c.get(ctx, "/network/ip-info", query, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
