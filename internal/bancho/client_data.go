package bancho

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ClientData is the parsed third line of the login handshake: the client's
// self-reported version, locale and hardware fingerprint.
type ClientData struct {
	VersionString  string
	VersionDate    int
	UTCOffset      int
	DisplayCity    bool
	AdaptersMD5    string
	AdapterListCSV string
	MacMD5         string
	UninstallMD5   string
	DiskMD5        string
	ScreenHash     string
	Flags          string
}

// parseClientData splits the `|`-delimited client_data line into its
// fields: version_string | utc_offset | display_city | adapters_hash_info |
// screen/hash | flags. adapters_hash_info is itself
// adapters_md5:adapter_list_csv:mac_md5:uninstall_md5:disk_md5.
func parseClientData(raw string) (ClientData, error) {
	fields := strings.Split(raw, "|")
	if len(fields) < 4 {
		return ClientData{}, fmt.Errorf("bancho: malformed client_data: %d fields", len(fields))
	}

	var cd ClientData
	cd.VersionString = fields[0]

	versionDate, err := parseVersionDate(fields[0])
	if err != nil {
		return ClientData{}, err
	}
	cd.VersionDate = versionDate

	if offset, err := strconv.Atoi(fields[1]); err == nil {
		cd.UTCOffset = offset
	}
	cd.DisplayCity = fields[2] == "1"

	hashParts := strings.Split(fields[3], ":")
	if len(hashParts) > 0 {
		cd.AdaptersMD5 = hashParts[0]
	}
	if len(hashParts) > 1 {
		cd.AdapterListCSV = hashParts[1]
	}
	if len(hashParts) > 2 {
		cd.MacMD5 = hashParts[2]
	}
	if len(hashParts) > 3 {
		cd.UninstallMD5 = hashParts[3]
	}
	if len(hashParts) > 4 {
		cd.DiskMD5 = hashParts[4]
	}

	if len(fields) > 4 {
		cd.ScreenHash = fields[4]
	}
	if len(fields) > 5 {
		cd.Flags = fields[5]
	}

	return cd, nil
}

// parseVersionDate turns a client version string (e.g. "b20120812",
// "b335") into its numeric date/build stamp.
func parseVersionDate(versionString string) (int, error) {
	trimmed := strings.TrimPrefix(versionString, "b")
	trimmed = strings.SplitN(trimmed, ".", 2)[0]
	date, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("bancho: bad version string %q: %w", versionString, err)
	}
	return date, nil
}

// adaptersChecksum returns the hex md5 of the raw adapter list, used to
// validate the client-declared adapters hash at login.
func adaptersChecksum(adapterListCSV string) string {
	sum := md5.Sum([]byte(adapterListCSV))
	return hex.EncodeToString(sum[:])
}
