package gaitlog

import (
	"strconv"

	"github.com/ayusman/gaitpose/internal/pose"
)

// GaitIndices are the landmarks exported in column format: shoulders, hips,
// knees, ankles and foot tips.
var GaitIndices = []int{
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
	pose.LeftFootIndex, pose.RightFootIndex,
}

// ColumnHeader returns the header record for the given landmark indices.
func ColumnHeader(indices []int) []string {
	header := make([]string, 0, 1+len(indices)*4)
	header = append(header, "Timestamp")
	for _, i := range indices {
		prefix := strconv.Itoa(i)
		header = append(header,
			prefix+"_x",
			prefix+"_y",
			prefix+"_z",
			prefix+"_visibility",
		)
	}
	return header
}

// ColumnRecord returns one row for r: the frame timestamp in milliseconds and
// the selected landmarks of the first pose. Cells are left empty when the
// frame has no pose.
func ColumnRecord(r *pose.FrameResult, indices []int) []string {
	record := make([]string, 1+len(indices)*4)
	if r == nil {
		return record
	}
	record[0] = strconv.FormatInt(r.TimestampMs, 10)

	p := r.First()
	if p == nil {
		return record
	}
	for n, i := range indices {
		l := p[i]
		base := 1 + n*4
		record[base] = formatFloat(l.X)
		record[base+1] = formatFloat(l.Y)
		record[base+2] = formatFloat(l.Z)
		record[base+3] = formatFloat(l.Visibility)
	}
	return record
}
