/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package composer

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/dc-tec/searchcluster-composer/internal/config"
	"github.com/dc-tec/searchcluster-composer/internal/infra"
	"github.com/dc-tec/searchcluster-composer/internal/kube"
)

// Commands understood by Run.
const (
	CommandRender = "render"
	CommandApply  = "apply"
)

const (
	defaultReleaseService = "composer"
	defaultChartName      = "elasticsearch"
	defaultChartVersion   = "7.17.3"
)

type options struct {
	configPath  string
	metricsFile string
	applyQPS    float64
	applyBurst  int
	identity    infra.Identity
	zap         zap.Options
}

func parseFlags(command string, args []string) (*options, error) {
	opts := &options{
		zap: zap.Options{
			Development: true,
		},
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to the SearchCluster YAML file.")
	fs.StringVar(&opts.metricsFile, "metrics-file", "",
		"If set, composition metrics are written to this file in the Prometheus text format.")
	fs.Float64Var(&opts.applyQPS, "apply-qps", 5, "Maximum apply requests per second sent to the API server.")
	fs.IntVar(&opts.applyBurst, "apply-burst", 10, "Burst of apply requests allowed above --apply-qps.")
	fs.StringVar(&opts.identity.ReleaseName, "release-name", "", "Release name stamped on every object.")
	fs.StringVar(&opts.identity.ReleaseNamespace, "namespace", "default", "Namespace the objects are created in.")
	fs.StringVar(&opts.identity.ReleaseService, "release-service", defaultReleaseService, "Value of the heritage label.")
	fs.StringVar(&opts.identity.ChartName, "chart-name", defaultChartName, "Chart name used in the chart label.")
	fs.StringVar(&opts.identity.ChartVersion, "chart-version", defaultChartVersion, "Chart version used in the chart label.")
	opts.zap.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.configPath == "" {
		return nil, errors.New("--config is required")
	}
	if opts.identity.ReleaseName == "" {
		return nil, errors.New("--release-name is required")
	}

	return opts, nil
}

// Run composes the SearchCluster named by --config. render writes the
// objects to out as YAML in creation order; apply sends them to the cluster
// from the current kubeconfig with Server-Side Apply in the same order.
func Run(ctx context.Context, command string, args []string, out io.Writer) error {
	opts, err := parseFlags(command, args)
	if err != nil {
		return err
	}

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts.zap)))
	logger := ctrl.Log.WithName(command)

	objects, err := compose(logger, opts)
	if err != nil {
		return err
	}

	switch command {
	case CommandRender:
		err = kube.EncodeYAML(out, nil, objects)
	case CommandApply:
		err = apply(ctx, logger, opts, objects)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	if opts.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(opts.metricsFile, metrics.Registry); werr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write metrics: %w", werr))
		}
	}

	return err
}

func compose(logger logr.Logger, opts *options) ([]client.Object, error) {
	cluster, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, err
	}

	bundle, err := infra.NewManager(opts.identity).Compose(logger, cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to compose %s: %w", opts.configPath, err)
	}

	return bundle.Objects()
}

func apply(ctx context.Context, logger logr.Logger, opts *options, objects []client.Object) error {
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	c, err := client.New(cfg, client.Options{Scheme: clientgoscheme.Scheme})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	return kube.ApplyInOrder(ctx, logger, c, c, kube.NewApplyLimiter(opts.applyQPS, opts.applyBurst), objects)
}
