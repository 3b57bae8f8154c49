package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

// CommandParams входные данные генератора команд. Все имена уже
// нормализованы; StartingSnapshot пустой для full send.
type CommandParams struct {
	SourcePool       string
	Dataset          string
	StartingSnapshot string
	EndingSnapshot   string

	TargetTransportHostname string
	TargetTransportUser     string
	TargetTransportPort     int

	TargetPool    string
	TargetDataset string
}

// zfs component naming: alphanumerics plus _ - . : /
// (https://openzfs.github.io/openzfs-docs/ naming rules, without spaces)
var zfsNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:/-]*$`)

// GenerateSyncCommand renders the transfer command the source node runs:
//
//	zfs send -c [-I pool/ds@start] pool/ds@end | ssh host "zfs receive -s pool/ds"
//
// send выполняется локально на источнике, доставка на таргет всегда через
// ssh. Инкрементальный диапазон — всегда -I (range-incremental), никогда -i.
// Malformed input is rejected rather than quoted into submission.
func GenerateSyncCommand(p CommandParams) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("zfs send -c")

	if p.StartingSnapshot != "" {
		sb.WriteString(" -I ")
		sb.WriteString(shellQuote(p.SourcePool + "/" + p.Dataset + "@" + p.StartingSnapshot))
	}

	sb.WriteString(" ")
	sb.WriteString(shellQuote(p.SourcePool + "/" + p.Dataset + "@" + p.EndingSnapshot))

	sb.WriteString(" | ssh ")
	if p.TargetTransportPort != 0 && p.TargetTransportPort != 22 {
		fmt.Fprintf(&sb, "-p %d ", p.TargetTransportPort)
	}
	sb.WriteString(sshTarget(p.TargetTransportUser, p.TargetTransportHostname))

	receive := "zfs receive -s " + shellQuote(p.TargetPool+"/"+p.TargetDataset)
	fmt.Fprintf(&sb, " %q", receive)

	return sb.String(), nil
}

func (p CommandParams) validate() error {
	fields := map[string]string{
		"source pool":              p.SourcePool,
		"dataset":                  p.Dataset,
		"ending snapshot":          p.EndingSnapshot,
		"target pool":              p.TargetPool,
		"target dataset":           p.TargetDataset,
		"target transport hostname": p.TargetTransportHostname,
	}
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("command generation failed: missing %s", name)
		}
	}

	zfsFields := map[string]string{
		"source pool":    p.SourcePool,
		"dataset":        p.Dataset,
		"target pool":    p.TargetPool,
		"target dataset": p.TargetDataset,
	}
	for name, value := range zfsFields {
		if !zfsNameRe.MatchString(value) {
			return fmt.Errorf("command generation failed: invalid %s %q", name, value)
		}
	}

	for _, snap := range []string{p.StartingSnapshot, p.EndingSnapshot} {
		if snap != "" && !zfsNameRe.MatchString(snap) {
			return fmt.Errorf("command generation failed: invalid snapshot name %q", snap)
		}
	}

	if p.StartingSnapshot == p.EndingSnapshot && p.StartingSnapshot != "" {
		return fmt.Errorf("command generation failed: starting and ending snapshots are equal")
	}

	return nil
}

// sshTarget собирает user@host часть без экранирования — это синтаксис ssh
func sshTarget(user, hostname string) string {
	if user != "" {
		return user + "@" + hostname
	}
	return hostname
}

// safeShellRe — символы, не требующие кавычек (как в shlex.quote)
var safeShellRe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// shellQuote quotes a string for safe POSIX shell use.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if safeShellRe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
