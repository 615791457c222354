package main

import (
	"fmt"
	"strconv"
	"strings"

	"minidfs/pkg/types"
	"minidfs/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	primaryColor   = lipgloss.Color("#FF79C6")
	secondaryColor = lipgloss.Color("#8BE9FD")
	accentColor    = lipgloss.Color("#50FA7B")
	warningColor   = lipgloss.Color("#FFB86C")
	dangerColor    = lipgloss.Color("#FF5555")
	mutedColor     = lipgloss.Color("#6272A4")
	bgLightColor   = lipgloss.Color("#44475A")
	fgColor        = lipgloss.Color("#F8F8F2")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			Background(bgLightColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(fgColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(bgLightColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return rowStyle
		})
}

func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func renderCluster(snap types.ClusterSnapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Datanodes"))
	b.WriteString("\n")
	b.WriteString(field("Live", strconv.Itoa(snap.LiveCount)))
	b.WriteString("\n")

	if len(snap.Nodes) == 0 {
		b.WriteString(mutedStyle.Render("No datanodes registered; the namenode is in safe mode."))
		return b.String()
	}

	t := newTable().Headers("NODE ID", "ADDRESS", "PORT")
	for _, n := range snap.Nodes {
		t.Row(strconv.Itoa(int(n.ID)), n.Address, strconv.Itoa(int(n.Port)))
	}
	b.WriteString(t.Render())
	return b.String()
}

func renderFile(file types.FileRecord) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(file.Name))
	b.WriteString("\n")
	b.WriteString(field("Size", fmt.Sprintf("%s (%d bytes)", utils.FormatDataSize(int64(file.Size)), file.Size)))
	b.WriteString("\n")
	b.WriteString(field("Blocks", strconv.Itoa(file.BlockCount)))
	b.WriteString("\n")

	if len(file.Blocks) == 0 {
		b.WriteString(mutedStyle.Render("No blocks assigned."))
		return b.String()
	}

	t := newTable().Headers("BLOCK", "NODE ID", "DATANODE")
	for _, blk := range file.Blocks {
		t.Row(strconv.Itoa(blk.Index), strconv.Itoa(int(blk.NodeID)), fmt.Sprintf("%s:%d", blk.Address, blk.Port))
	}
	b.WriteString(t.Render())
	return b.String()
}

func renderHealth(status healthpb.HealthCheckResponse_ServingStatus) string {
	color := warningColor
	label := status.String()
	switch status {
	case healthpb.HealthCheckResponse_SERVING:
		color = accentColor
	case healthpb.HealthCheckResponse_NOT_SERVING:
		color = dangerColor
		label += " (safe mode)"
	}
	return field("Namenode", lipgloss.NewStyle().Foreground(color).Bold(true).Render(label))
}
