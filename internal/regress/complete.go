package regress

import (
	"github.com/banshee-data/cloudmend/internal/pointcloud"
)

// Complete applies the regressor to every point of in and returns the
// completed cloud, preserving input order. The whole cloud is processed in
// one forward pass; an empty input yields an empty output.
func (n *Network) Complete(in *pointcloud.Cloud) (*pointcloud.Cloud, error) {
	if in.Len() == 0 {
		return pointcloud.NewCloud(0), nil
	}
	pred, err := n.Forward(in.ToMatrix())
	if err != nil {
		return nil, err
	}
	return pointcloud.FromMatrix(pred)
}
