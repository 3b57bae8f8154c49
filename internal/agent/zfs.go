package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/zfswitness/pkg/api"
)

// InventoryLister собирает текущий список снапшотов на ноде
type InventoryLister interface {
	ListSnapshots(ctx context.Context) ([]api.SnapshotRecord, error)
}

// ZFSLister реализует InventoryLister через утилиту zfs
type ZFSLister struct {
	zfsPath string
}

// NewZFSLister creates a lister that shells out to the zfs binary
func NewZFSLister(zfsPath string) *ZFSLister {
	if zfsPath == "" {
		zfsPath = "zfs"
	}
	return &ZFSLister{zfsPath: zfsPath}
}

// ListSnapshots запускает zfs list и парсит вывод.
// -Hp: без заголовка, табуляция как разделитель, числа без округления
func (l *ZFSLister) ListSnapshots(ctx context.Context) ([]api.SnapshotRecord, error) {
	cmd := exec.CommandContext(ctx, l.zfsPath,
		"list", "-Hp", "-o", "name,creation,used", "-t", "snapshot")

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("zfs list failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("zfs list failed: %w", err)
	}

	return parseInventory(bytes.NewReader(output))
}

// parseInventory разбирает табличный вывод zfs list -Hp.
// Каждая строка: pool/dataset@snap<TAB>creation_unix<TAB>used_bytes
func parseInventory(r io.Reader) ([]api.SnapshotRecord, error) {
	var records []api.SnapshotRecord

	scanner := bufio.NewScanner(r)
	// Одна строка — одно имя снапшота, длинных строк не бывает,
	// но датасеты могут быть глубоко вложены
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", lineNo, len(fields))
		}

		pool, dataset, name, err := splitSnapshotPath(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		creation, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid creation time %q: %w", lineNo, fields[1], err)
		}

		used, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid used size %q: %w", lineNo, fields[2], err)
		}

		records = append(records, api.SnapshotRecord{
			Pool:      pool,
			Dataset:   dataset,
			Name:      name,
			Timestamp: time.Unix(creation, 0).UTC(),
			Size:      &used,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading zfs output: %w", err)
	}

	return records, nil
}

// splitSnapshotPath разбирает pool/dataset@snap на составляющие.
// Dataset может быть вложенным (pool/a/b@snap -> dataset "a/b").
func splitSnapshotPath(full string) (pool, dataset, name string, err error) {
	at := strings.LastIndex(full, "@")
	if at <= 0 || at == len(full)-1 {
		return "", "", "", fmt.Errorf("malformed snapshot path %q", full)
	}
	name = full[at+1:]

	fs := full[:at]
	slash := strings.Index(fs, "/")
	if slash <= 0 || slash == len(fs)-1 {
		return "", "", "", fmt.Errorf("malformed dataset path %q", fs)
	}
	return fs[:slash], fs[slash+1:], name, nil
}
