package infra

import (
	"fmt"

	"github.com/dc-tec/searchcluster-composer/internal/constants"
)

// keystoreScript creates the keystore, adds every file mounted beneath the
// per-entry secret directories, optionally adds the bootstrap password and
// copies the result into the scratch volume shared with the main container.
var keystoreScript = fmt.Sprintf(`set -euo pipefail

elasticsearch-keystore create

for i in %[1]s/*/*; do
  key=$(basename "$i")
  echo "Adding file $i to keystore key $key"
  elasticsearch-keystore add-file "$key" "$i"
done

# Add the bootstrap password since otherwise the entrypoint tries to do this on startup
if [ ! -z ${%[2]s+x} ]; then
  echo 'Adding env $%[2]s to keystore as key bootstrap.password'
  echo "$%[2]s" | elasticsearch-keystore add -x bootstrap.password
fi

cp -a %[3]s %[4]s/
`, constants.PathKeystoreSecrets, constants.EnvElasticPassword, constants.PathKeystoreFile, constants.PathKeystoreScratch)

// readinessScript waits for the cluster to reach the configured health once;
// after the start file exists it only checks that the node responds.
func readinessScript(protocol string, httpPort int32, healthParams string) string {
	return fmt.Sprintf(`set -e

# If the node is starting up wait for the cluster to be ready (request params: "%[3]s")
# Once it has started only check that the node itself is responding
START_FILE=%[4]s

http () {
  local path="${1}"
  local args="${2}"
  set -- -XGET -s
  if [ "$args" != "" ]; then
    set -- "$@" $args
  fi
  if [ -n "${%[5]s}" ] && [ -n "${%[6]s}" ]; then
    set -- "$@" -u "${%[5]s}:${%[6]s}"
  fi
  curl --output /dev/null -k "$@" "%[1]s://127.0.0.1:%[2]d${path}"
}

if [ -f "${START_FILE}" ]; then
  echo 'Elasticsearch is already running, lets check the node is healthy'
  http "/_cluster/health?timeout=0s" "--fail"
else
  echo 'Waiting for elasticsearch cluster to become ready (request params: "%[3]s")'
  if http "/_cluster/health?%[3]s" "--fail" ; then
    touch "${START_FILE}"
    exit 0
  else
    echo 'Cluster is not yet ready (request params: "%[3]s")'
    exit 1
  fi
fi
`, protocol, httpPort, healthParams, constants.PathReadinessStartFile, constants.EnvElasticUsername, constants.EnvElasticPassword)
}

// gracefulTerminationScript traps SIGTERM and blocks until the elected master
// is another node of the master service.
func gracefulTerminationScript(protocol, masterService string, httpPort int32) string {
	return fmt.Sprintf(`set -eo pipefail

http () {
  local path="${1}"
  if [ -n "${%[4]s}" ] && [ -n "${%[5]s}" ]; then
    BASIC_AUTH="-u ${%[4]s}:${%[5]s}"
  else
    BASIC_AUTH=''
  fi
  curl -XGET -s -k --fail ${BASIC_AUTH} %[1]s://%[2]s:%[3]d${path}
}

cleanup () {
  while true ; do
    local master="$(http "/_cat/master?h=node" || echo "")"
    if [[ $master == "%[2]s"* && $master != "${%[6]s}" ]]; then
      echo "This node is not master."
      break
    fi
    echo "This node is still master, waiting gracefully for it to step down"
    sleep 1
  done

  exit 0
}

trap cleanup SIGTERM

sleep infinity &
wait $!
`, protocol, masterService, httpPort, constants.EnvElasticUsername, constants.EnvElasticPassword, constants.EnvSidecarNodeName)
}
