package main

import (
	"fmt"
	"strings"

	devsly "github.com/devsly/devsly-go"
	"github.com/spf13/cobra"
)

var whoisCmd = &cobra.Command{
	Use:   "whois <domain>",
	Short: "Look up the registration record of a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhois,
}

var dnsCmd = &cobra.Command{
	Use:   "dns <domain>",
	Short: "Look up DNS records of a domain",
	Long: `Look up DNS records of a domain.

Supported record types: A, AAAA, MX, NS, TXT, CNAME, SOA.

Example:
  devsly dns example.com
  devsly dns example.com --type MX`,
	Args: cobra.ExactArgs(1),
	RunE: runDNS,
}

var ipinfoCmd = &cobra.Command{
	Use:   "ipinfo [ip]",
	Short: "Show geolocation for an IP address (default: the caller's)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIPInfo,
}

func init() {
	rootCmd.AddCommand(whoisCmd, dnsCmd, ipinfoCmd)

	dnsCmd.Flags().StringP("type", "t", string(devsly.RecordA), "record type")
}

func runWhois(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Whois(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, info)
	}
	fmt.Fprintf(out, "Domain:       %s\n", info.Domain)
	fmt.Fprintf(out, "Registrar:    %s\n", orDash(info.Registrar))
	fmt.Fprintf(out, "Created:      %s\n", orDash(info.CreationDate))
	fmt.Fprintf(out, "Expires:      %s\n", orDash(info.ExpirationDate))
	fmt.Fprintf(out, "Name servers: %s\n", orDash(strings.Join(info.NameServers, ", ")))
	return nil
}

func runDNS(cmd *cobra.Command, args []string) error {
	rawType, _ := cmd.Flags().GetString("type")
	recordType, err := devsly.ParseRecordType(rawType)
	if err != nil {
		return err
	}

	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.DNSLookup(cmd.Context(), args[0], recordType)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, result)
	}
	if len(result.Records) == 0 {
		fmt.Fprintf(out, "no %s records for %s\n", result.Type, result.Domain)
		return nil
	}
	for _, rec := range result.Records {
		fmt.Fprintf(out, "%s\t%s\t%s\n", result.Domain, result.Type, rec)
	}
	return nil
}

func runIPInfo(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	var ip string
	if len(args) == 1 {
		ip = args[0]
	}
	info, err := client.IPInfo(cmd.Context(), ip)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, info)
	}
	fmt.Fprintf(out, "IP:       %s\n", info.IP)
	fmt.Fprintf(out, "Location: %s\n", orDash(joinNonEmpty(", ", info.City, info.Region, info.Country)))
	fmt.Fprintf(out, "ISP:      %s\n", orDash(info.ISP))
	fmt.Fprintf(out, "Org:      %s\n", orDash(info.Org))
	fmt.Fprintf(out, "Timezone: %s\n", orDash(info.Timezone))
	if info.Latitude != nil && info.Longitude != nil {
		fmt.Fprintf(out, "Coords:   %.4f, %.4f\n", *info.Latitude, *info.Longitude)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
