package migrator

import "strings"

// maintenanceDB is the database every PostgreSQL cluster ships with. The
// provisioner connects to it to issue CREATE DATABASE.
const maintenanceDB = "postgres"

// SplitURL splits a connection URL of the form
//
//	scheme://[userinfo@]host[:port]/<database>[?params]
//
// into the base URL (everything before the final '/') and the bare database
// name (the final segment, without any query string).
func SplitURL(url string) (base, name string, err error) {
	i := strings.LastIndexByte(url, '/')
	if i < 0 {
		return "", "", &URLError{URL: url}
	}
	base, name = url[:i], url[i+1:]
	if q := strings.IndexByte(name, '?'); q >= 0 {
		name = name[:q]
	}
	return base, name, nil
}

// maintenanceURL returns the URL of the maintenance database on the same
// server as url. Connection parameters after '?' are carried over so
// settings such as sslmode apply to both connections.
func maintenanceURL(url string) (string, error) {
	base, _, err := SplitURL(url)
	if err != nil {
		return "", err
	}
	admin := base + "/" + maintenanceDB
	tail := url[len(base)+1:]
	if q := strings.IndexByte(tail, '?'); q >= 0 {
		admin += tail[q:]
	}
	return admin, nil
}
